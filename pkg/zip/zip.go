// Package zip bundles generated artifacts into a single downloadable
// archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// Asset is one file destined for an archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets writes the assets into an in-memory zip archive. Entry
// timestamps are set to the archive's build time so repeated exports of the
// same data differ only in metadata.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	now := time.Now()
	for _, asset := range assets {
		header := &zip.FileHeader{
			Name:     asset.Filename,
			Method:   zip.Deflate,
			Modified: now,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("zip: create entry %q: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write entry %q: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
