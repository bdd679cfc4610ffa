package volume

import (
	"errors"
	"fmt"
	"strings"
)

// ListSeparator separates identifiers in a request list.
const ListSeparator = "|"

// ErrMalformedIdentifier is returned when an identifier token cannot be parsed.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// ParseIdentifiers parses a "|"-separated identifier list. Each token is a
// volume ID optionally followed by <seq,seq,...> and/or [name,name,...].
// Empty tokens are skipped. Duplicate volume IDs are kept as separate
// identifiers.
func ParseIdentifiers(list string) ([]*Identifier, error) {
	var ids []*Identifier
	for _, tok := range strings.Split(list, ListSeparator) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		id, err := ParseIdentifier(tok)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseIdentifier parses a single identifier token.
func ParseIdentifier(tok string) (*Identifier, error) {
	end := strings.IndexAny(tok, "<[")
	volumeID := tok
	rest := ""
	if end >= 0 {
		volumeID, rest = tok[:end], tok[end:]
	}
	if _, _, err := SplitVolumeID(volumeID); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedIdentifier, tok, err)
	}

	id := NewIdentifier(volumeID)
	for rest != "" {
		var closer string
		switch rest[0] {
		case '<':
			closer = ">"
		case '[':
			closer = "]"
		default:
			return nil, fmt.Errorf("%w: %q", ErrMalformedIdentifier, tok)
		}
		i := strings.Index(rest, closer)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q: missing %q", ErrMalformedIdentifier, tok, closer)
		}
		items := splitItems(rest[1:i])
		if closer == ">" {
			if err := id.AddPages(items...); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
			}
		} else {
			if err := id.AddMetadata(items...); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
			}
		}
		rest = rest[i+1:]
	}
	return id, nil
}

func splitItems(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
