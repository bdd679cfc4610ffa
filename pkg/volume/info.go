package volume

import (
	"fmt"
	"strings"
)

// Copyright is the rights classification of a volume.
type Copyright string

const (
	// PublicDomain volumes may be served without restriction.
	PublicDomain Copyright = "public-domain"

	// InCopyright volumes are subject to access policy.
	InCopyright Copyright = "in-copyright"
)

// ParseCopyright accepts the canonical names plus the short forms stored by
// older loaders ("pd", "ic").
func ParseCopyright(s string) (Copyright, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PublicDomain), "pd", "public_domain":
		return PublicDomain, nil
	case string(InCopyright), "ic", "in_copyright":
		return InCopyright, nil
	default:
		return "", fmt.Errorf("unknown copyright classification %q", s)
	}
}

// Info describes a volume as recorded in the backend. It is passed by value
// and never modified after construction.
type Info struct {
	VolumeID  string    `json:"volume_id"`
	PageCount int       `json:"page_count"`
	Copyright Copyright `json:"copyright"`
}

// ContentUnit is one named payload: a page (named by its sequence) or a
// metadata entry.
type ContentUnit struct {
	Name string
	Data []byte
}
