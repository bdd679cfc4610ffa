// Package work turns coarse identifiers into bounded, independently
// retrievable fetch units.
package work

import (
	"fmt"
	"strings"

	"github.com/htrc/data-api/pkg/store"
)

// Unit is one fetch against the storage gateway: a batch of page
// sequences, or a single metadata entry, of one volume.
type Unit struct {
	VolumeID string
	Family   store.Family
	Names    []string

	// Group identifies the identifier the unit was split from within its
	// request; Index is the unit's position within that group.
	Group int
	Index int
}

// IsPages reports whether the unit fetches page content.
func (u Unit) IsPages() bool {
	return u.Family == store.FamilyPages
}

// String renders the unit for logs, e.g. "test.vol1/pages[00000001..00000002]".
func (u Unit) String() string {
	switch len(u.Names) {
	case 0:
		return fmt.Sprintf("%s/%s[]", u.VolumeID, u.Family)
	case 1:
		return fmt.Sprintf("%s/%s[%s]", u.VolumeID, u.Family, u.Names[0])
	default:
		return fmt.Sprintf("%s/%s[%s..%s]", u.VolumeID, u.Family, u.Names[0], u.Names[len(u.Names)-1])
	}
}

// SplitPages partitions sorted page sequences into full batches of
// maxBatchSize followed by at most one remainder batch. Order is preserved.
func SplitPages(volumeID string, seqs []string, maxBatchSize int) []Unit {
	if maxBatchSize < 1 {
		maxBatchSize = 1
	}
	units := make([]Unit, 0, (len(seqs)+maxBatchSize-1)/maxBatchSize)
	for start := 0; start < len(seqs); start += maxBatchSize {
		end := min(start+maxBatchSize, len(seqs))
		batch := make([]string, end-start)
		copy(batch, seqs[start:end])
		units = append(units, Unit{VolumeID: volumeID, Family: store.FamilyPages, Names: batch})
	}
	return units
}

// SplitMetadata creates one unit per metadata name.
func SplitMetadata(volumeID string, names []string) []Unit {
	units := make([]Unit, 0, len(names))
	for _, name := range names {
		units = append(units, Unit{VolumeID: volumeID, Family: store.FamilyMetadata, Names: []string{name}})
	}
	return units
}

// Summary renders a unit list for debug logs.
func Summary(units []Unit) string {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.String()
	}
	return strings.Join(parts, " ")
}
