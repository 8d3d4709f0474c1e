package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"palmtell/internal/billing"
	"palmtell/internal/domain"
	"palmtell/internal/horoscope"
	"palmtell/internal/infra/google"
	"palmtell/internal/middleware"
	"palmtell/internal/palm"
	"palmtell/internal/queue"
	"palmtell/internal/reading"
	"palmtell/internal/session"
	"palmtell/internal/storage"
	"palmtell/internal/vision"
)

type memKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemKV() *memKV { return &memKV{values: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memKV) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memKV) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	fmt.Sscanf(m.values[key], "%d", &n)
	n++
	m.values[key] = fmt.Sprintf("%d", n)
	return n, nil
}

func (m *memKV) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (m *memKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return time.Minute, nil
	}
	return -2 * time.Second, nil
}

type fakeAccounts struct {
	mu     sync.Mutex
	nextID int
	byID   map[string]*domain.Account
	bySub  map[string]*domain.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]*domain.Account{}, bySub: map[string]*domain.Account{}}
}

func (f *fakeAccounts) UpsertByGoogleSub(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.bySub[a.GoogleSub]; ok {
		existing.Email = a.Email
		existing.Name = a.Name
		cp := *existing
		return &cp, nil
	}
	f.nextID++
	stored := &domain.Account{
		ID:        fmt.Sprintf("acct-%d", f.nextID),
		GoogleSub: a.GoogleSub,
		Email:     a.Email,
		Name:      a.Name,
	}
	f.byID[stored.ID] = stored
	f.bySub[a.GoogleSub] = stored
	cp := *stored
	return &cp, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccounts) GetByGoogleSub(ctx context.Context, sub string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.bySub[sub]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccounts) SetPalmData(ctx context.Context, accountID, photoKey string, dob time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.PalmPhotoKey = &photoKey
	a.DateOfBirth = &dob
	a.PalmConfirmed = true
	return nil
}

type fakeProfiles struct {
	mu     sync.Mutex
	nextID int
	byID   map[string]*domain.Profile
}

func newFakeProfiles() *fakeProfiles { return &fakeProfiles{byID: map[string]*domain.Profile{}} }

func (f *fakeProfiles) Create(ctx context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		f.nextID++
		p.ID = fmt.Sprintf("prof-%d", f.nextID)
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakeProfiles) GetForAccount(ctx context.Context, profileID, accountID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[profileID]
	if !ok || p.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) ListByAccount(ctx context.Context, accountID string) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Profile
	for _, p := range f.byID {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeProfiles) CountByAccount(ctx context.Context, accountID string) (int, error) {
	list, _ := f.ListByAccount(ctx, accountID)
	return len(list), nil
}

func (f *fakeProfiles) EnsureDefault(ctx context.Context, accountID, name string, dob *time.Time) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.AccountID == accountID && p.IsDefault {
			cp := *p
			return &cp, nil
		}
	}
	f.nextID++
	p := &domain.Profile{
		ID:          fmt.Sprintf("prof-%d", f.nextID),
		AccountID:   accountID,
		Name:        name,
		Relation:    "self",
		DateOfBirth: dob,
		IsDefault:   true,
	}
	f.byID[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Delete(ctx context.Context, profileID, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[profileID]
	if !ok || p.AccountID != accountID {
		return domain.ErrNotFound
	}
	delete(f.byID, profileID)
	return nil
}

type fakeSubs struct {
	mu   sync.Mutex
	rows map[string]*domain.Subscription
}

func newFakeSubs() *fakeSubs { return &fakeSubs{rows: map[string]*domain.Subscription{}} }

func (f *fakeSubs) GetByAccount(ctx context.Context, accountID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[accountID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSubs) Upsert(ctx context.Context, sub *domain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.rows[sub.AccountID] = &cp
	return nil
}

func (f *fakeSubs) Update(ctx context.Context, sub *domain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[sub.AccountID]; !ok {
		return domain.ErrNotFound
	}
	cp := *sub
	f.rows[sub.AccountID] = &cp
	return nil
}

type fakeReadings struct {
	mu   sync.Mutex
	rows map[string]*domain.Reading
}

func newFakeReadings() *fakeReadings { return &fakeReadings{rows: map[string]*domain.Reading{}} }

func (f *fakeReadings) Create(ctx context.Context, rd *domain.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rd
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.rows[rd.ID] = &cp
	return nil
}

func (f *fakeReadings) GetByID(ctx context.Context, id string) (*domain.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rd, ok := f.rows[id]; ok {
		cp := *rd
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReadings) GetForAccount(ctx context.Context, id, accountID string) (*domain.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rd, ok := f.rows[id]
	if !ok || rd.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	cp := *rd
	return &cp, nil
}

func (f *fakeReadings) ListByAccount(ctx context.Context, accountID string, profileID *string) ([]domain.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reading
	for _, rd := range f.rows {
		if rd.AccountID != accountID {
			continue
		}
		if profileID != nil && rd.ProfileID != *profileID {
			continue
		}
		out = append(out, *rd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReadings) CountSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rd := range f.rows {
		if rd.AccountID == accountID && !rd.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeReadings) MarkProcessing(ctx context.Context, id string) (domain.ReadingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rd, ok := f.rows[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	if rd.Status.IsTerminal() {
		return rd.Status, nil
	}
	rd.Status = domain.ReadingProcessing
	return rd.Status, nil
}

func (f *fakeReadings) Complete(ctx context.Context, id string, analysis []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rd, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rd.Status.IsTerminal() {
		return nil
	}
	rd.Status = domain.ReadingCompleted
	rd.AnalysisJSON = analysis
	return nil
}

func (f *fakeReadings) Fail(ctx context.Context, id string, errorCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rd, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rd.Status.IsTerminal() {
		return nil
	}
	rd.Status = domain.ReadingFailed
	rd.ErrorCode = &errorCode
	return nil
}

func (f *fakeReadings) ListStuck(ctx context.Context, olderThan time.Time) ([]domain.Reading, error) {
	return nil, nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.AnalysisJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job queue.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeValidator struct {
	result *vision.ValidationResult
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, url string) (*vision.ValidationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeAnalyzer struct {
	valid    *vision.ValidationResult
	analysis *vision.Analysis
}

func (f *fakeAnalyzer) Validate(ctx context.Context, url string) (*vision.ValidationResult, error) {
	if f.valid != nil {
		return f.valid, nil
	}
	return &vision.ValidationResult{Valid: true}, nil
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, url, locale string) (*vision.Analysis, error) {
	if f.analysis != nil {
		return f.analysis, nil
	}
	return &vision.Analysis{
		Personality:   "warm",
		LifePath:      "long",
		Career:        "bright",
		Relationships: "steady",
		Health:        "solid",
		Lucky:         "7",
	}, nil
}

type fakeGen struct{}

func (fakeGen) Horoscope(ctx context.Context, sign, locale string, date time.Time) (string, error) {
	return "a fine day for " + sign, nil
}

func (fakeGen) Monthly(ctx context.Context, sign, locale string, month time.Time) (*vision.MonthlyHoroscope, error) {
	return &vision.MonthlyHoroscope{Overview: "a fine month for " + sign, Theme: "growth"}, nil
}

type fakeIdentity struct {
	identity *google.Identity
	err      error
}

func (f *fakeIdentity) VerifyIDToken(ctx context.Context, raw string) (*google.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

const (
	testJWTSecret     = "handler-test-secret"
	testQueueKey      = "queue-signing-key"
	testWebhookSecret = "webhook-secret"
)

type testEnv struct {
	app       *App
	accounts  *fakeAccounts
	profiles  *fakeProfiles
	subs      *fakeSubs
	readings  *fakeReadings
	enqueued  *fakeEnqueuer
	validator *fakeValidator
	analyzer  *fakeAnalyzer
	identity  *fakeIdentity
	files     *storage.FileStore
	signer    *storage.URLSigner
	kv        *memKV
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	kv := newMemKV()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	signer := storage.NewURLSigner("http://api.test/files", "sign-secret")
	sessions := session.NewStore(kv, logger)
	limiter := session.NewFailureLimiter(kv, logger)

	env := &testEnv{
		accounts:  newFakeAccounts(),
		profiles:  newFakeProfiles(),
		subs:      newFakeSubs(),
		readings:  newFakeReadings(),
		enqueued:  &fakeEnqueuer{},
		validator: &fakeValidator{result: &vision.ValidationResult{Valid: true}},
		analyzer:  &fakeAnalyzer{},
		identity:  &fakeIdentity{identity: &google.Identity{Sub: "goog-1", Email: "palm@example.com", Name: "Palm Reader"}},
		files:     files,
		signer:    signer,
		kv:        kv,
	}
	variants, err := billing.NewVariantMap("100", "101", "102", "103", "104")
	if err != nil {
		t.Fatalf("NewVariantMap() error: %v", err)
	}
	env.app = &App{
		Accounts:       env.accounts,
		Profiles:       env.profiles,
		Subs:           env.subs,
		Palm:           palm.NewService(sessions, limiter, files, signer, env.validator, env.accounts, env.profiles, logger),
		Readings:       reading.NewService(env.accounts, env.subs, env.readings, env.enqueued, logger),
		Jobs:           reading.NewJobRunner(env.readings, signer, env.analyzer, logger),
		Stars:          horoscope.NewService(kv, fakeGen{}, logger),
		Reconciler:     billing.NewReconciler(env.accounts, env.subs, variants, nil, testWebhookSecret, logger),
		QueueVerifier:  queue.NewVerifier(testQueueKey),
		Files:          files,
		Signer:         signer,
		GoogleVerifier: env.identity,
		JWTSecret:      testJWTSecret,
		Logger:         logger,
	}
	return env
}

func (e *testEnv) seedAccount(t *testing.T, confirmed bool) *domain.Account {
	t.Helper()
	acc, err := e.accounts.UpsertByGoogleSub(context.Background(), &domain.Account{
		GoogleSub: fmt.Sprintf("goog-%d", len(e.accounts.byID)+1),
		Email:     "palm@example.com",
		Name:      "Palm Reader",
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if confirmed {
		dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
		if err := e.accounts.SetPalmData(context.Background(), acc.ID, "palms/"+acc.ID+"/palm.jpg", dob); err != nil {
			t.Fatalf("seed palm data: %v", err)
		}
		if _, err := e.profiles.EnsureDefault(context.Background(), acc.ID, acc.Name, &dob); err != nil {
			t.Fatalf("seed default profile: %v", err)
		}
		acc, _ = e.accounts.GetByID(context.Background(), acc.ID)
	}
	return acc
}

func (e *testEnv) seedSub(t *testing.T, accountID string, plan domain.Plan, status domain.SubscriptionStatus) {
	t.Helper()
	if err := e.subs.Upsert(context.Background(), &domain.Subscription{
		AccountID: accountID,
		Plan:      plan,
		Status:    status,
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func authedRequest(r *http.Request, accountID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), accountID))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf strings.Builder
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	r := httptest.NewRequest(method, target, strings.NewReader(buf.String()))
	r.Header.Set("Content-Type", "application/json")
	return r
}
