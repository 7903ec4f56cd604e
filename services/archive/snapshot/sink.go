// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

// Sink persists named snapshot objects offsite.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// checkName rejects object names that would escape the sink's namespace.
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return errs.Validationf("snapshot object name %q must be a bare file name", name)
	}
	return nil
}

// DirSink stores snapshot objects as files in a local directory.
type DirSink struct {
	dir string
}

// NewDirSink creates the directory if needed and returns a sink over it.
func NewDirSink(dir string) (*DirSink, error) {
	if dir == "" {
		return nil, errs.Validationf("snapshot directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) Put(ctx context.Context, name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot object %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot object %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync snapshot object %s: %w", name, err)
	}
	return f.Close()
}

func (s *DirSink) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, errs.NotFoundf("snapshot object %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot object %s: %w", name, err)
	}
	return f, nil
}

// GCSSink stores snapshot objects in a Google Cloud Storage bucket.
type GCSSink struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSSink connects to GCS. With a credentials file the client
// authenticates from it; an empty path falls back to application
// default credentials.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSSink, error) {
	if bucket == "" {
		return nil, errs.Validationf("gcs bucket must not be empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSSink) object(name string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, name))
}

func (s *GCSSink) Put(ctx context.Context, name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return err
	}

	w := s.object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy snapshot object %s to gs://%s: %w", name, s.bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", name, err)
	}
	return nil
}

func (s *GCSSink) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	r, err := s.object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, errs.NotFoundf("snapshot object %s in gs://%s", name, s.bucket)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot object %s in gs://%s: %w", name, s.bucket, err)
	}
	return r, nil
}

// Close releases the GCS client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
