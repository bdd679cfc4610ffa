// Package testutil provides a scriptable storage backend for exercising
// the retrieval pipeline under failures, delays and concurrency.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/store/memstore"
	"github.com/htrc/data-api/pkg/volume"
)

// Behavior scripts how calls touching one volume misbehave.
type Behavior struct {
	// FailTimes is the number of leading calls that fail with Err.
	FailTimes int

	// Err is returned by failing calls (default store.ErrTimeout).
	Err error

	// AlwaysFail makes every call fail with Err.
	AlwaysFail bool

	// Delay is slept before every call.
	Delay time.Duration

	// Gate, when set, holds every call until it is closed or the call's
	// context is done.
	Gate chan struct{}

	// Panic makes every call panic.
	Panic bool
}

// FakeBackend is a store.Backend over an in-memory store with per-volume
// scripted behavior. Safe for concurrent use.
type FakeBackend struct {
	*memstore.Store

	mu        sync.Mutex
	behaviors map[string]*Behavior
	calls     map[string]int

	// Tracking
	inFlight    int
	maxInFlight int
	totalCalls  int
}

// NewFakeBackend creates an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Store:     memstore.New(),
		behaviors: make(map[string]*Behavior),
		calls:     make(map[string]int),
	}
}

// PageText is the content stored for page seq of a volume by AddVolume.
func PageText(volumeID string, seq int) string {
	return fmt.Sprintf("%s page %d", volumeID, seq)
}

// AddVolume stores a volume with pages 1..pageCount, each holding
// PageText, and the given metadata entries with "<name> of <id>" content.
func (f *FakeBackend) AddVolume(volumeID string, pageCount int, copyright volume.Copyright, metadata ...string) {
	pages := make(map[string][]byte, pageCount)
	for i := 1; i <= pageCount; i++ {
		pages[volume.SequenceOf(i)] = []byte(PageText(volumeID, i))
	}
	meta := make(map[string][]byte, len(metadata))
	for _, name := range metadata {
		meta[name] = []byte(name + " of " + volumeID)
	}
	f.PutVolume(volume.Info{VolumeID: volumeID, PageCount: pageCount, Copyright: copyright}, pages, meta)
}

// Script sets the behavior of calls touching volumeID.
func (f *FakeBackend) Script(volumeID string, b Behavior) {
	if b.Err == nil {
		b.Err = store.ErrTimeout
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[volumeID] = &b
}

// Calls returns the number of calls made for volumeID.
func (f *FakeBackend) Calls(volumeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[volumeID]
}

// TotalCalls returns the number of calls made for all volumes.
func (f *FakeBackend) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalCalls
}

// MaxInFlight returns the highest number of simultaneous calls observed.
func (f *FakeBackend) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// InFlight returns the number of calls currently in progress.
func (f *FakeBackend) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// VolumeInfo implements store.Backend.
func (f *FakeBackend) VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	done, err := f.enter(ctx, volumeID)
	defer done()
	if err != nil {
		return volume.Info{}, err
	}
	return f.Store.VolumeInfo(ctx, volumeID)
}

// Columns implements store.Backend.
func (f *FakeBackend) Columns(ctx context.Context, volumeID string, family store.Family, names []string) ([]store.Column, error) {
	done, err := f.enter(ctx, volumeID)
	defer done()
	if err != nil {
		return nil, err
	}
	return f.Store.Columns(ctx, volumeID, family, names)
}

func (f *FakeBackend) enter(ctx context.Context, volumeID string) (func(), error) {
	f.mu.Lock()
	f.calls[volumeID]++
	f.totalCalls++
	n := f.calls[volumeID]
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	var b Behavior
	if p := f.behaviors[volumeID]; p != nil {
		b = *p
	}
	f.mu.Unlock()

	done := func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}

	if b.Panic {
		done()
		panic(fmt.Sprintf("testutil: scripted panic for %s", volumeID))
	}
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return done, ctx.Err()
		}
	}
	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return done, ctx.Err()
		}
	}
	if b.AlwaysFail || n <= b.FailTimes {
		return done, b.Err
	}
	return done, nil
}

var _ store.Backend = (*FakeBackend)(nil)
