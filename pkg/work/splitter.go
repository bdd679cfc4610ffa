package work

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/policy"
	"github.com/htrc/data-api/pkg/volume"
)

// InfoSource resolves volume info. gateway.Gateway implements it.
type InfoSource interface {
	VolumeInfo(ctx context.Context, volumeID string) (volume.Info, error)
}

// Config holds the request-shaping options of the splitter.
type Config struct {
	// MaxBatchSize is the number of page sequences per unit.
	MaxBatchSize int

	// LegacyPageRange generates 1..pageCount-1 for "all pages" requests,
	// leaving out the last page, for byte-compatible output with older
	// deployments. The default is 1..pageCount.
	LegacyPageRange bool

	// PublicDomainOnly rejects in-copyright volumes.
	PublicDomainOnly bool
}

// Splitter splits the identifiers of one request. It memoizes volume info
// and keeps the request's policy tally, so it is not safe for concurrent
// use.
type Splitter struct {
	info   InfoSource
	cfg    Config
	tally  *policy.Tally
	infos  map[string]volume.Info
	logger zerolog.Logger
}

// NewSplitter creates a splitter for one request. A nil tally disables
// policy checks.
func NewSplitter(info InfoSource, cfg Config, tally *policy.Tally) *Splitter {
	return &Splitter{
		info:   info,
		cfg:    cfg,
		tally:  tally,
		infos:  make(map[string]volume.Info),
		logger: logging.NewLogger("splitter"),
	}
}

// Split turns an identifier into page units followed by metadata units.
// Errors are classified failures: NotFound or RepositoryFailure from the
// page-count lookup, PolicyViolation from the request limits.
func (s *Splitter) Split(ctx context.Context, id *volume.Identifier) ([]Unit, error) {
	volumeID := id.VolumeID()

	if s.tally != nil {
		if err := s.tally.AddVolume(volumeID); err != nil {
			return nil, err
		}
	}

	if s.cfg.PublicDomainOnly {
		info, err := s.volumeInfo(ctx, volumeID)
		if err != nil {
			return nil, err
		}
		if info.Copyright != volume.PublicDomain {
			return nil, failure.PolicyViolation(volumeID, fmt.Errorf("volume is %s", info.Copyright))
		}
	}

	seqs := id.PageSequences()
	if id.AllPages() {
		info, err := s.volumeInfo(ctx, volumeID)
		if err != nil {
			return nil, err
		}
		seqs = s.allPages(info.PageCount)
	}

	if s.tally != nil && len(seqs) > 0 {
		if err := s.tally.AddPages(volumeID, len(seqs)); err != nil {
			return nil, err
		}
	}

	units := SplitPages(volumeID, seqs, s.cfg.MaxBatchSize)
	units = append(units, SplitMetadata(volumeID, id.MetadataNames())...)

	s.logger.Debug().
		Str("volume_id", volumeID).
		Int("pages", len(seqs)).
		Int("units", len(units)).
		Str("unit_list", Summary(units)).
		Msg("Split identifier")

	return units, nil
}

func (s *Splitter) allPages(pageCount int) []string {
	last := pageCount
	if s.cfg.LegacyPageRange {
		last--
	}
	seqs := make([]string, 0, max(last, 0))
	for i := 1; i <= last; i++ {
		seqs = append(seqs, volume.SequenceOf(i))
	}
	return seqs
}

func (s *Splitter) volumeInfo(ctx context.Context, volumeID string) (volume.Info, error) {
	if info, ok := s.infos[volumeID]; ok {
		return info, nil
	}
	info, err := s.info.VolumeInfo(ctx, volumeID)
	if err != nil {
		return volume.Info{}, failure.As(err, volumeID)
	}
	s.infos[volumeID] = info
	return info, nil
}
