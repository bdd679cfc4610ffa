// Package policy implements the request-shaping limits applied before any
// work for a request is dispatched.
package policy

import (
	"fmt"

	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/volume"
)

// Checker enforces one configured limit. A limit of 0 means unlimited.
type Checker struct {
	name  string
	limit int
}

// NewChecker creates a checker. Negative limits are treated as unlimited.
func NewChecker(name string, limit int) *Checker {
	if limit < 0 {
		limit = 0
	}
	return &Checker{name: name, limit: limit}
}

// Limit returns the configured limit.
func (c *Checker) Limit() int {
	return c.limit
}

// Check returns a PolicyViolation naming token iff the limit is set and
// observed exceeds it.
func (c *Checker) Check(observed int, token string) error {
	if c == nil || c.limit <= 0 || observed <= c.limit {
		return nil
	}
	return failure.PolicyViolation(token,
		fmt.Errorf("%s limit %d exceeded (observed %d)", c.name, c.limit, observed))
}

// Checkers groups the three request limits.
type Checkers struct {
	MaxVolumes        *Checker
	MaxTotalPages     *Checker
	MaxPagesPerVolume *Checker
}

// NewCheckers creates the checker set from configured limits.
func NewCheckers(maxVolumes, maxTotalPages, maxPagesPerVolume int) *Checkers {
	return &Checkers{
		MaxVolumes:        NewChecker("max volumes", maxVolumes),
		MaxTotalPages:     NewChecker("max total pages", maxTotalPages),
		MaxPagesPerVolume: NewChecker("max pages per volume", maxPagesPerVolume),
	}
}

// CheckIdentifiers runs the request-level checks over explicitly listed
// volumes and pages and fails on the first identifier that crosses a limit.
// Page counts of "all pages" identifiers are unknown here and are checked
// at split time.
func (c *Checkers) CheckIdentifiers(ids []*volume.Identifier) error {
	tally := c.NewTally()
	for _, id := range ids {
		if err := tally.AddVolume(id.VolumeID()); err != nil {
			return err
		}
		if !id.AllPages() {
			if err := tally.AddPages(id.VolumeID(), len(id.PageSequences())); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewTally starts a per-request running count.
func (c *Checkers) NewTally() *Tally {
	return &Tally{
		checkers:    c,
		volumes:     make(map[string]struct{}),
		volumePages: make(map[string]int),
	}
}

// Tally counts distinct volumes and pages for one request. It is not safe
// for concurrent use.
type Tally struct {
	checkers    *Checkers
	volumes     map[string]struct{}
	volumePages map[string]int
	totalPages  int
}

// AddVolume counts a volume. Duplicate volume IDs are counted once.
func (t *Tally) AddVolume(volumeID string) error {
	if _, ok := t.volumes[volumeID]; ok {
		return nil
	}
	t.volumes[volumeID] = struct{}{}
	if t.checkers == nil {
		return nil
	}
	return t.checkers.MaxVolumes.Check(len(t.volumes), volumeID)
}

// AddPages counts n pages of one volume against the per-volume and total
// limits. Pages of a volume named by several identifiers accumulate.
func (t *Tally) AddPages(volumeID string, n int) error {
	t.volumePages[volumeID] += n
	t.totalPages += n
	if t.checkers != nil {
		if err := t.checkers.MaxPagesPerVolume.Check(t.volumePages[volumeID], volumeID); err != nil {
			return err
		}
	}
	if t.checkers == nil {
		return nil
	}
	return t.checkers.MaxTotalPages.Check(t.totalPages, volumeID)
}

// Volumes returns the number of distinct volumes counted.
func (t *Tally) Volumes() int {
	return len(t.volumes)
}

// Pages returns the total pages counted.
func (t *Tally) Pages() int {
	return t.totalPages
}
