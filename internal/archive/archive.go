// Package archive writes the fetched forest of a crawl cycle to a blob store as JSON.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/hnmirror/internal/crawler"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver lays out cycle archives under a prefix.
type Archiver struct {
	blobs  BlobStore
	prefix string
}

// New returns an Archiver writing through blobs.
func New(blobs BlobStore, prefix string) (*Archiver, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Archiver{blobs: blobs, prefix: strings.Trim(prefix, "/")}, nil
}

// ObjectPath returns <prefix>/<category>/<yyyy>/<mm>/<dd>/<cycleID>.json.
func ObjectPath(prefix, category, cycleID string, at time.Time) string {
	at = at.UTC()
	return path.Join(
		strings.Trim(prefix, "/"),
		category,
		fmt.Sprintf("%04d", at.Year()),
		fmt.Sprintf("%02d", int(at.Month())),
		fmt.Sprintf("%02d", at.Day()),
		cycleID+".json",
	)
}

// Archive encodes trees and stores them. It returns the object URI.
func (a *Archiver) Archive(ctx context.Context, category, cycleID string, at time.Time, trees []*crawler.Tree) (string, error) {
	if trees == nil {
		trees = []*crawler.Tree{}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(trees); err != nil {
		return "", fmt.Errorf("encode trees: %w", err)
	}
	uri, err := a.blobs.PutObject(ctx, ObjectPath(a.prefix, category, cycleID, at), "application/json", &buf)
	if err != nil {
		return "", fmt.Errorf("archive %s cycle %s: %w", category, cycleID, err)
	}
	return uri, nil
}
