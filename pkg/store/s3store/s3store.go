// Package s3store is a store.Backend over an S3-compatible object store
// (AWS S3, MinIO, R2). Rows are laid out with store.ObjectLayout; each
// column is one object.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

// API defines the subset of the S3 client interface used by the store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all objects.
	Prefix string
}

// Store implements store.Backend using an S3-compatible backend.
type Store struct {
	client API
	bucket string
	layout store.ObjectLayout
}

// New creates an S3 store. The client must be pre-configured with
// credentials, region and endpoint.
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3store: bucket is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		layout: store.NewObjectLayout(cfg.Prefix),
	}, nil
}

// VolumeInfo implements store.Backend.
func (s *Store) VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	data, err := s.get(ctx, s.layout.InfoKey(volumeID))
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

// Columns implements store.Backend. Objects are fetched sequentially; the
// dispatch pool provides the parallelism.
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
		data, err := s.get(ctx, key)
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

// PutVolume uploads a whole volume row.
func (s *Store) PutVolume(ctx context.Context, info volume.Info, pages, metadata map[string][]byte) error {
	data, err := store.EncodeInfo(info)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.layout.InfoKey(info.VolumeID), data); err != nil {
		return err
	}
	if err := s.putColumns(ctx, info.VolumeID, store.FamilyPages, pages); err != nil {
		return err
	}
	return s.putColumns(ctx, info.VolumeID, store.FamilyMetadata, metadata)
}

func (s *Store) putColumns(ctx context.Context, volumeID string, family store.Family, columns map[string][]byte) error {
	for name, v := range columns {
		key, err := s.layout.ColumnKey(volumeID, family, name)
		if err != nil {
			return fmt.Errorf("s3store: %w", err)
		}
		if err := s.put(ctx, key, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify("read object", err)
	}
	return data, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3store: put object %s: %w", key, err)
	}
	return nil
}

func classify(op string, err error) error {
	if isNotFound(err) {
		return store.ErrNoData
	}
	if isTimeout(err) {
		return fmt.Errorf("s3store: %s: %w: %v", op, store.ErrTimeout, err)
	}
	return fmt.Errorf("s3store: %s: %w", op, err)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}

func isTimeout(err error) bool {
	if store.IsTransient(err) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestTimeout", "SlowDown", "ServiceUnavailable", "503":
			return true
		}
	}
	return false
}

var _ store.Backend = (*Store)(nil)
