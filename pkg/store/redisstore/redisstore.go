// Package redisstore is a store.Backend that keeps each volume row as Redis
// hashes, one per column family:
//
//	<prefix>vol:<id>:info      page_count, copyright
//	<prefix>vol:<id>:pages     <seq> -> page text
//	<prefix>vol:<id>:metadata  <name> -> metadata entry
//
// HMGET returns values in field order, which gives the gateway the
// ordered column lookup it validates against.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

var redisCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dataapi_redis_call_duration_seconds",
	Help:    "Redis column store call duration by operation",
	Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"op"})

// Client is the subset of the go-redis client used by the store.
type Client interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store implements store.Backend over Redis hashes.
type Store struct {
	client Client
	prefix string
}

// New creates a store scoped to the given key prefix.
func New(client Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(volumeID, suffix string) string {
	return s.prefix + "vol:" + volumeID + ":" + suffix
}

// VolumeInfo implements store.Backend.
func (s *Store) VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	start := time.Now()
	fields, err := s.client.HGetAll(ctx, s.key(volumeID, "info")).Result()
	redisCallDuration.WithLabelValues("info").Observe(time.Since(start).Seconds())
	if err != nil {
		return volume.Info{}, classify("hgetall info", err)
	}
	if len(fields) == 0 {
		return volume.Info{}, store.ErrNoData
	}

	pageCount, err := strconv.Atoi(fields["page_count"])
	if err != nil {
		return volume.Info{}, fmt.Errorf("volume %s: parse page_count: %w", volumeID, err)
	}
	copyright, err := volume.ParseCopyright(fields["copyright"])
	if err != nil {
		return volume.Info{}, fmt.Errorf("volume %s: %w", volumeID, err)
	}

	return volume.Info{VolumeID: volumeID, PageCount: pageCount, Copyright: copyright}, nil
}

// Columns implements store.Backend.
func (s *Store) Columns(ctx context.Context, volumeID string, family store.Family, names []string) ([]store.Column, error) {
	if len(names) == 0 {
		return nil, store.ErrNoData
	}

	start := time.Now()
	values, err := s.client.HMGet(ctx, s.key(volumeID, string(family)), names...).Result()
	redisCallDuration.WithLabelValues(string(family)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, classify("hmget "+string(family), err)
	}

	cols := make([]store.Column, 0, len(values))
	found := 0
	for i, v := range values {
		if i >= len(names) {
			break
		}
		col := store.Column{Name: names[i]}
		switch val := v.(type) {
		case string:
			col.Value = []byte(val)
			found++
		case []byte:
			col.Value = val
			found++
		}
		cols = append(cols, col)
	}
	if found == 0 {
		return nil, store.ErrNoData
	}
	return cols, nil
}

// PutVolume writes a whole volume row. Existing hashes are replaced.
func (s *Store) PutVolume(ctx context.Context, info volume.Info, pages, metadata map[string][]byte) error {
	infoKey := s.key(info.VolumeID, "info")
	pagesKey := s.key(info.VolumeID, string(store.FamilyPages))
	metaKey := s.key(info.VolumeID, string(store.FamilyMetadata))

	if err := s.client.Del(ctx, infoKey, pagesKey, metaKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if err := s.client.HSet(ctx, infoKey,
		"page_count", strconv.Itoa(info.PageCount),
		"copyright", string(info.Copyright)).Err(); err != nil {
		return fmt.Errorf("redis hset info: %w", err)
	}
	if err := s.hsetAll(ctx, pagesKey, pages); err != nil {
		return err
	}
	return s.hsetAll(ctx, metaKey, metadata)
}

func (s *Store) hsetAll(ctx context.Context, key string, columns map[string][]byte) error {
	if len(columns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(columns))
	for name, v := range columns {
		values = append(values, name, v)
	}
	if err := s.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// classify marks driver timeouts as transient so the gateway retries them.
func classify(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return store.ErrNoData
	}
	if store.IsTransient(err) {
		return fmt.Errorf("redis %s: %w: %v", op, store.ErrTimeout, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}

var _ store.Backend = (*Store)(nil)
