package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/archive"
	"github.com/htrc/data-api/pkg/audit"
	"github.com/htrc/data-api/pkg/failure"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/metrics"
	"github.com/htrc/data-api/pkg/retrieval"
	"github.com/htrc/data-api/pkg/volume"
)

// RequestIDHeader carries a caller supplied request ID.
const RequestIDHeader = "X-Request-ID"

var (
	errNoIdentifiers = errors.New("no identifiers given")
	errPagesRequired = errors.New("page identifiers must list page sequences")
)

type server struct {
	svc         *retrieval.Service
	audit       *audit.Logger
	compression archive.Compression
	seq         atomic.Uint64
	logger      zerolog.Logger
}

func newServer(svc *retrieval.Service, auditLog *audit.Logger, compression archive.Compression) *server {
	return &server{
		svc:         svc,
		audit:       auditLog,
		compression: compression,
		logger:      logging.NewLogger("http"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/volumes", s.handleVolumes)
	mux.HandleFunc("/pages", s.handlePages)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// handleVolumes serves /volumes?volumeIDs=<list>&concat=<bool>.
func (s *server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	if !allowedMethod(w, r) {
		return
	}
	layout := archive.LayoutPerPage
	if concat, _ := strconv.ParseBool(r.FormValue("concat")); concat {
		layout = archive.LayoutConcat
	}
	s.retrieve(w, r, "volumes", r.FormValue("volumeIDs"), layout, false)
}

// handlePages serves /pages?pageIDs=<list>&concat=<bool>. Every identifier
// must name its pages.
func (s *server) handlePages(w http.ResponseWriter, r *http.Request) {
	if !allowedMethod(w, r) {
		return
	}
	layout := archive.LayoutPerPage
	if concat, _ := strconv.ParseBool(r.FormValue("concat")); concat {
		layout = archive.LayoutConcat
	}
	s.retrieve(w, r, "pages", r.FormValue("pageIDs"), layout, true)
}

func allowedMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", "GET, POST")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *server) retrieve(w http.ResponseWriter, r *http.Request, endpoint, list string, layout archive.Layout, pagesOnly bool) {
	start := time.Now()
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = fmt.Sprintf("http-%d", s.seq.Add(1))
	}
	logger := logging.ForRequest(s.logger, requestID)

	ids, err := s.parse(list, pagesOnly)
	if checkers := s.svc.Checkers(); err == nil && checkers != nil {
		err = checkers.CheckIdentifiers(ids)
	}
	if err != nil {
		s.audit.Rejected(requestID, r.RemoteAddr, err)
		logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Request rejected")
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	s.audit.Request(requestID, r.RemoteAddr, endpoint, ids)

	ctx := retrieval.WithRequestID(r.Context(), requestID)
	coord := s.svc.NewCoordinator(ctx, ids)
	defer coord.Close()

	out := &lazyZipWriter{w: w, filename: endpoint + ".zip"}
	writer := archive.NewWriter(archive.Options{Layout: layout, Compression: s.compression})
	stats, err := writer.Stream(ctx, coord, out)
	if err != nil && !out.started {
		http.Error(w, err.Error(), failure.StatusCode(err))
	}

	s.audit.Completed(requestID, stats.Volumes, err, time.Since(start))
	logger.Info().
		Str("endpoint", endpoint).
		Int("volumes", stats.Volumes).
		Int("entries", stats.Entries).
		Bool("failed", err != nil).
		Dur("duration", time.Since(start)).
		Msg("Request served")
}

func (s *server) parse(list string, pagesOnly bool) ([]*volume.Identifier, error) {
	ids, err := volume.ParseIdentifiers(list)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errNoIdentifiers
	}
	if pagesOnly {
		for _, id := range ids {
			if id.AllPages() {
				return nil, fmt.Errorf("%w: %s", errPagesRequired, id.VolumeID())
			}
		}
	}
	return ids, nil
}

// statusOf maps request-shaping errors. Parse errors are unclassified and
// are the caller's fault.
func statusOf(err error) int {
	if failure.KindOf(err) == failure.KindUnknown {
		return http.StatusBadRequest
	}
	return failure.StatusCode(err)
}

// lazyZipWriter defers the zip headers and status until the archive writes
// its first byte, so a failure raised before that can still be reported
// with an error status.
type lazyZipWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (l *lazyZipWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.started = true
		h := l.w.Header()
		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", l.filename))
		l.w.WriteHeader(http.StatusOK)
	}
	return l.w.Write(p)
}
