// Package blobstore is a store.Backend over a gocloud.dev blob bucket. The
// bucket URL selects the driver: file:///path, mem://, gs://bucket.
package blobstore

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	"gocloud.dev/gcerrors"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

// Store implements store.Backend over a blob bucket.
type Store struct {
	bucket *blob.Bucket
	layout store.ObjectLayout
}

// Open opens the bucket at url.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return New(bucket, prefix), nil
}

// New wraps an already opened bucket. The store takes ownership of it.
func New(bucket *blob.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, layout: store.NewObjectLayout(prefix)}
}

// VolumeInfo implements store.Backend.
func (s *Store) VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	data, err := s.read(ctx, s.layout.InfoKey(volumeID))
	if err != nil {
		return volume.Info{}, err
	}
	info, err := store.DecodeInfo(data)
	if err != nil {
		return volume.Info{}, err
	}
	info.VolumeID = volumeID
	return info, nil
}

// Columns implements store.Backend.
func (s *Store) Columns(ctx context.Context, volumeID string, family store.Family, names []string) ([]store.Column, error) {
	cols := make([]store.Column, len(names))
	found := 0
	for i, name := range names {
		cols[i].Name = name
		key, err := s.layout.ColumnKey(volumeID, family, name)
		if err != nil {
			// Reported as absent: the gateway turns it into NotFound for name.
			continue
		}
		data, err := s.read(ctx, key)
		if errors.Is(err, store.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cols[i].Value = data
		found++
	}
	if found == 0 {
		return nil, store.ErrNoData
	}
	return cols, nil
}

// PutVolume writes a whole volume row.
func (s *Store) PutVolume(ctx context.Context, info volume.Info, pages, metadata map[string][]byte) error {
	data, err := store.EncodeInfo(info)
	if err != nil {
		return err
	}
	if err := s.bucket.WriteAll(ctx, s.layout.InfoKey(info.VolumeID), data, nil); err != nil {
		return fmt.Errorf("blobstore: write info: %w", err)
	}
	if err := s.writeColumns(ctx, info.VolumeID, store.FamilyPages, pages); err != nil {
		return err
	}
	return s.writeColumns(ctx, info.VolumeID, store.FamilyMetadata, metadata)
}

func (s *Store) writeColumns(ctx context.Context, volumeID string, family store.Family, columns map[string][]byte) error {
	for name, v := range columns {
		key, err := s.layout.ColumnKey(volumeID, family, name)
		if err != nil {
			return fmt.Errorf("blobstore: %w", err)
		}
		if err := s.bucket.WriteAll(ctx, key, v, nil); err != nil {
			return fmt.Errorf("blobstore: write %s %s: %w", family, name, err)
		}
	}
	return nil
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err == nil {
		return data, nil
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return nil, store.ErrNoData
	case gcerrors.DeadlineExceeded, gcerrors.ResourceExhausted:
		return nil, fmt.Errorf("blobstore: read %s: %w: %v", key, store.ErrTimeout, err)
	}
	if store.IsTransient(err) {
		return nil, fmt.Errorf("blobstore: read %s: %w: %v", key, store.ErrTimeout, err)
	}
	return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
}

var _ store.Backend = (*Store)(nil)
