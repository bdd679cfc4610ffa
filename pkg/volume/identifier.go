// Package volume holds the request and result types shared by the retrieval
// pipeline: identifiers, volume metadata, content units and volume readers.
package volume

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SequenceDigits is the width of a canonical page sequence.
const SequenceDigits = 8

// IDDelimiter separates the prefix of a volume ID from its local part.
const IDDelimiter = "."

var (
	// ErrInvalidSequence is returned for page sequences that are not 1-8 digits.
	ErrInvalidSequence = errors.New("invalid page sequence")

	// ErrInvalidVolumeID is returned for volume IDs without a prefix and local part.
	ErrInvalidVolumeID = errors.New("invalid volume id")

	// ErrInvalidMetadataName is returned for metadata names that are not a
	// single plain path element.
	ErrInvalidMetadataName = errors.New("invalid metadata name")
)

// Identifier names one volume and, optionally, the pages and metadata
// entries wanted from it. A nil page list means every page of the volume.
//
// Page sequences and metadata names are kept deduplicated and sorted.
type Identifier struct {
	volumeID string
	pages    map[string]struct{}
	metadata map[string]struct{}
}

// NewIdentifier creates an identifier for a whole volume.
func NewIdentifier(volumeID string) *Identifier {
	return &Identifier{volumeID: volumeID}
}

// VolumeID returns the raw volume ID.
func (id *Identifier) VolumeID() string {
	return id.volumeID
}

// AddPages adds page sequences in any zero-padded or unpadded form.
// Calling it with no arguments marks the identifier as "no pages", which
// differs from the nil "all pages" state.
func (id *Identifier) AddPages(seqs ...string) error {
	if id.pages == nil {
		id.pages = make(map[string]struct{}, len(seqs))
	}
	for _, s := range seqs {
		canonical, err := CanonicalSequence(s)
		if err != nil {
			return fmt.Errorf("volume %s: %w", id.volumeID, err)
		}
		id.pages[canonical] = struct{}{}
	}
	return nil
}

// AddMetadata adds metadata entry names. Blank names are skipped; a name
// that is not a single plain path element fails the whole call.
func (id *Identifier) AddMetadata(names ...string) error {
	if id.metadata == nil {
		id.metadata = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if err := CheckMetadataName(n); err != nil {
			return fmt.Errorf("volume %s: %w", id.volumeID, err)
		}
		id.metadata[n] = struct{}{}
	}
	return nil
}

// CheckMetadataName rejects names that could address anything other than
// one entry of the volume's own metadata: path separators, ".." and names
// starting with a dot.
func CheckMetadataName(name string) error {
	if name == "" ||
		strings.ContainsAny(name, "/\\\x00") ||
		strings.Contains(name, "..") ||
		strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidMetadataName, name)
	}
	return nil
}

// AllPages reports whether the identifier requests every page of the volume.
func (id *Identifier) AllPages() bool {
	return id.pages == nil
}

// PageSequences returns the requested page sequences in ascending order,
// or nil when all pages are requested.
func (id *Identifier) PageSequences() []string {
	if id.pages == nil {
		return nil
	}
	return sortedKeys(id.pages)
}

// MetadataNames returns the requested metadata names in sorted order.
func (id *Identifier) MetadataNames() []string {
	return sortedKeys(id.metadata)
}

// String renders the identifier in the id<pages>[metadata] list syntax.
func (id *Identifier) String() string {
	var b strings.Builder
	b.WriteString(id.volumeID)
	if id.pages != nil {
		b.WriteString("<")
		b.WriteString(strings.Join(id.PageSequences(), ","))
		b.WriteString(">")
	}
	if len(id.metadata) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(id.MetadataNames(), ","))
		b.WriteString("]")
	}
	return b.String()
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CanonicalSequence converts a page sequence to its 8-digit zero-padded form.
func CanonicalSequence(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > SequenceDigits {
		return "", fmt.Errorf("%w: %q", ErrInvalidSequence, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSequence, s)
	}
	return SequenceOf(n), nil
}

// SequenceOf formats a page number as a canonical page sequence.
func SequenceOf(n int) string {
	return fmt.Sprintf("%0*d", SequenceDigits, n)
}

// SplitVolumeID splits a volume ID into its prefix and local part at the
// first delimiter.
func SplitVolumeID(volumeID string) (prefix, local string, err error) {
	i := strings.Index(volumeID, IDDelimiter)
	if i <= 0 || i == len(volumeID)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidVolumeID, volumeID)
	}
	return volumeID[:i], volumeID[i+1:], nil
}

var localReplacer = strings.NewReplacer(":", "+", "/", "=", ".", ",")

// SanitizeID returns a directory and filename safe form of a volume ID.
// Only the local part is transformed; IDs without a prefix are transformed
// whole.
func SanitizeID(volumeID string) string {
	prefix, local, err := SplitVolumeID(volumeID)
	if err != nil {
		return localReplacer.Replace(volumeID)
	}
	return prefix + IDDelimiter + localReplacer.Replace(local)
}
