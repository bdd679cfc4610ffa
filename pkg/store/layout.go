package store

import (
	"errors"
	"fmt"
	"path"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/htrc/data-api/pkg/volume"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidColumnName is returned for column names that would resolve
// outside their volume's family directory.
var ErrInvalidColumnName = errors.New("invalid column name")

// InfoObject is the object name holding a volume's info document.
const InfoObject = "info.json"

// ObjectLayout maps volume rows onto flat object keys:
//
//	<prefix><sanitized id>/info.json
//	<prefix><sanitized id>/pages/<seq>
//	<prefix><sanitized id>/metadata/<name>
type ObjectLayout struct {
	Prefix string
}

// NewObjectLayout normalises prefix to end in "/" when set.
func NewObjectLayout(prefix string) ObjectLayout {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return ObjectLayout{Prefix: prefix}
}

// InfoKey returns the key of a volume's info document.
func (l ObjectLayout) InfoKey(volumeID string) string {
	return l.Prefix + path.Join(volume.SanitizeID(volumeID), InfoObject)
}

// ColumnKey returns the key of one column. The name must stay a single
// element below <sanitized id>/<family>/.
func (l ObjectLayout) ColumnKey(volumeID string, family Family, name string) (string, error) {
	dir := path.Join(volume.SanitizeID(volumeID), string(family)) + "/"
	key := path.Join(dir, name)
	if strings.ContainsAny(name, "/\\") || !strings.HasPrefix(key, dir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColumnName, name)
	}
	return l.Prefix + key, nil
}

// EncodeInfo serialises volume info for object stores and caches.
func EncodeInfo(info volume.Info) ([]byte, error) {
	data, err := jsonCodec.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode volume info: %w", err)
	}
	return data, nil
}

// DecodeInfo parses a document written by EncodeInfo and validates its
// copyright classification.
func DecodeInfo(data []byte) (volume.Info, error) {
	var info volume.Info
	if err := jsonCodec.Unmarshal(data, &info); err != nil {
		return volume.Info{}, fmt.Errorf("decode volume info: %w", err)
	}
	c, err := volume.ParseCopyright(string(info.Copyright))
	if err != nil {
		return volume.Info{}, fmt.Errorf("decode volume info: %w", err)
	}
	info.Copyright = c
	return info, nil
}
