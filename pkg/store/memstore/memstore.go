// Package memstore is an in-process store.Backend used for tests, examples
// and the "memory" storage backend.
package memstore

import (
	"context"
	"sync"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

type row struct {
	info    volume.Info
	columns map[store.Family]map[string][]byte
}

// Store keeps volume rows in memory. Values are copied on the way in and
// out. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[string]*row
}

// New creates an empty store.
func New() *Store {
	return &Store{rows: make(map[string]*row)}
}

// PutVolume stores (or replaces) a volume row.
func (s *Store) PutVolume(info volume.Info, pages, metadata map[string][]byte) {
	r := &row{
		info: info,
		columns: map[store.Family]map[string][]byte{
			store.FamilyPages:    copyColumns(pages),
			store.FamilyMetadata: copyColumns(metadata),
		},
	}
	s.mu.Lock()
	s.rows[info.VolumeID] = r
	s.mu.Unlock()
}

// VolumeInfo implements store.Backend.
func (s *Store) VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	if err := ctx.Err(); err != nil {
		return volume.Info{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[volumeID]
	if !ok {
		return volume.Info{}, store.ErrNoData
	}
	return r.info, nil
}

// Columns implements store.Backend.
func (s *Store) Columns(ctx context.Context, volumeID string, family store.Family, names []string) ([]store.Column, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[volumeID]
	if !ok {
		return nil, store.ErrNoData
	}

	cols := make([]store.Column, len(names))
	found := 0
	for i, name := range names {
		cols[i].Name = name
		if v, ok := r.columns[family][name]; ok {
			cols[i].Value = append([]byte{}, v...)
			found++
		}
	}
	if found == 0 {
		return nil, store.ErrNoData
	}
	return cols, nil
}

func copyColumns(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = append([]byte{}, v...)
	}
	return out
}

var _ store.Backend = (*Store)(nil)
