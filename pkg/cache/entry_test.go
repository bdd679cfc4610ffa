package cache

import (
	"testing"
	"time"

	"github.com/htrc/data-api/pkg/volume"
)

func TestNewEntry(t *testing.T) {
	info := volume.Info{VolumeID: "test.vol1", PageCount: 12, Copyright: volume.PublicDomain}
	entry := NewEntry(info, 10*time.Minute)

	if entry.Info != info {
		t.Errorf("Info = %+v, want %+v", entry.Info, info)
	}
	if got := entry.Expires.Sub(entry.CachedAt); got != 10*time.Minute {
		t.Errorf("Expires - CachedAt = %v, want 10m", got)
	}
	if entry.IsExpired() {
		t.Error("Fresh entry should not be expired")
	}
}

func TestCacheEntry_Expiry(t *testing.T) {
	tests := []struct {
		name        string
		expires     time.Time
		wantExpired bool
		wantMin     time.Duration
		wantMax     time.Duration
	}{
		{
			name:        "one hour remaining",
			expires:     time.Now().Add(time.Hour),
			wantExpired: false,
			wantMin:     59 * time.Minute,
			wantMax:     61 * time.Minute,
		},
		{
			name:        "already expired",
			expires:     time.Now().Add(-time.Hour),
			wantExpired: true,
		},
		{
			name:        "just expired",
			expires:     time.Now().Add(-time.Second),
			wantExpired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := entry.TTL(); got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
