package volume

// Reader hands out the retrieved pages and metadata of one volume. Each
// queue can be drained exactly once. A Reader is owned by a single consumer.
type Reader struct {
	volumeID    string
	sanitizedID string
	pages       []ContentUnit
	metadata    []ContentUnit
}

// NewReader creates a reader over the given pages and metadata, which must
// already be in delivery order.
func NewReader(volumeID string, pages, metadata []ContentUnit) *Reader {
	return &Reader{
		volumeID:    volumeID,
		sanitizedID: SanitizeID(volumeID),
		pages:       pages,
		metadata:    metadata,
	}
}

// VolumeID returns the raw volume ID.
func (r *Reader) VolumeID() string {
	return r.volumeID
}

// SanitizedID returns the directory-safe volume ID used for archive entries.
func (r *Reader) SanitizedID() string {
	return r.sanitizedID
}

// HasMorePages reports whether NextPage will return a page.
func (r *Reader) HasMorePages() bool {
	return len(r.pages) > 0
}

// NextPage pops the next page.
func (r *Reader) NextPage() (ContentUnit, bool) {
	if len(r.pages) == 0 {
		return ContentUnit{}, false
	}
	p := r.pages[0]
	r.pages[0] = ContentUnit{}
	r.pages = r.pages[1:]
	return p, true
}

// HasMoreMetadata reports whether NextMetadata will return an entry.
func (r *Reader) HasMoreMetadata() bool {
	return len(r.metadata) > 0
}

// NextMetadata pops the next metadata entry.
func (r *Reader) NextMetadata() (ContentUnit, bool) {
	if len(r.metadata) == 0 {
		return ContentUnit{}, false
	}
	m := r.metadata[0]
	r.metadata[0] = ContentUnit{}
	r.metadata = r.metadata[1:]
	return m, true
}
