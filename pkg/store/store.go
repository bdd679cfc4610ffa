// Package store defines the column-store contract the storage gateway
// reads volumes through, and the helpers shared by its backends.
package store

import (
	"context"
	"errors"
	"net"

	"github.com/htrc/data-api/pkg/volume"
)

// Family selects the column family of a volume row.
type Family string

const (
	// FamilyPages holds page text keyed by 8-digit page sequence.
	FamilyPages Family = "pages"

	// FamilyMetadata holds metadata entries keyed by name.
	FamilyMetadata Family = "metadata"
)

var (
	// ErrNoData is returned when the row (or every requested column of it) is absent.
	ErrNoData = errors.New("no data")

	// ErrTimeout marks a transient backend timeout that may be retried.
	ErrTimeout = errors.New("backend timeout")
)

// Column is one named cell of a volume row. A nil Value means the column
// was not present.
type Column struct {
	Name  string
	Value []byte
}

// Backend reads volume rows from a column store. Implementations must be
// safe for concurrent use by all dispatch workers.
type Backend interface {
	// VolumeInfo returns the page count and copyright of a volume, or
	// ErrNoData when the volume does not exist.
	VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error)

	// Columns returns the named columns in request order. Absent columns
	// are returned with a nil Value or omitted from the tail. ErrNoData is
	// returned when none of them exist.
	Columns(ctx context.Context, volumeID string, family Family, names []string) ([]Column, error)
}

// IsTransient reports whether err is a timeout worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
