// Package server implements the gRPC span index service
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/spanindex/internal/config"
	"github.com/nainya/spanindex/internal/logger"
	"github.com/nainya/spanindex/internal/metrics"
	"github.com/nainya/spanindex/pkg/document"
	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/tagger"
	"github.com/nainya/spanindex/pkg/tagspan"
	"github.com/nainya/spanindex/pkg/version"
)

// entry is one open document and its tag index. writeMu serializes edits
// with the rebuilds that follow them.
type entry struct {
	doc     *document.Document
	index   *tagspan.Index[tagger.Tag]
	writeMu sync.Mutex
}

// Server implements SpanIndexServer
type Server struct {
	cfg     *config.Config
	docs    *document.Store
	tagger  *tagger.Tagger
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*entry

	startTime time.Time
	opMu      sync.Mutex
	opCounts  map[string]int64
}

// NewServer creates a server with no open documents
func NewServer(cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*Server, error) {
	tg, err := tagger.Compile(cfg.Rules, cfg.TrackingMode())
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		docs:      document.NewStore(),
		tagger:    tg,
		log:       log,
		metrics:   m,
		entries:   make(map[string]*entry),
		startTime: time.Now(),
		opCounts:  make(map[string]int64),
	}, nil
}

// Rules returns the number of compiled tagging rules
func (s *Server) Rules() int {
	return s.tagger.Len()
}

func (s *Server) count(op string) {
	s.opMu.Lock()
	s.opCounts[op]++
	s.opMu.Unlock()
}

// toStatus maps package errors onto gRPC codes
func (s *Server) toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tagspan.ErrTranslation) {
		s.metrics.RecordTranslationError(op)
	}

	var fieldErr *errField
	switch {
	case errors.As(err, &fieldErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, document.ErrDocumentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, document.ErrDocumentExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, version.ErrVersionReleased),
		errors.Is(err, version.ErrBackwardTranslation):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, version.ErrFutureVersion),
		errors.Is(err, version.ErrInvalidEdit),
		errors.Is(err, version.ErrInvalidSpan),
		errors.Is(err, document.ErrPatchMismatch):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func (s *Server) lookup(req *structpb.Struct) (*entry, error) {
	id, err := requireString(req, "document_id")
	if err != nil {
		return nil, err
	}
	if _, err := s.docs.Get(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	return e, nil
}

func (s *Server) newIndex(doc *document.Document) *tagspan.Index[tagger.Tag] {
	opts := s.cfg.QueryOptions()
	opts.Observe = func(strategy query.Strategy, results int) {
		s.metrics.RecordQuery(strategy.String(), results)
	}

	index := tagspan.NewIndex[tagger.Tag](tagspan.Config{
		Oracle: doc,
		Mode:   s.cfg.TrackingMode(),
		Query:  opts,
	})
	log := s.log.IndexLogger(doc.ID)
	index.OnPublish = func(_, next *tagspan.Generation[tagger.Tag]) {
		log.LogBuild(next.ID, uint64(next.Tree.Version()), next.Tree.Len(), next.Carried, next.Fresh, next.BuildTime)
		s.metrics.RecordBuild(doc.ID, next.Tree.Len(), next.Carried, next.Fresh, next.BuildTime)
	}
	return index
}

func generationFields(gen *tagspan.Generation[tagger.Tag]) map[string]interface{} {
	return map[string]interface{}{
		"version":    uint64(gen.Tree.Version()),
		"generation": gen.ID,
		"spans":      gen.Tree.Len(),
		"carried":    gen.Carried,
		"fresh":      gen.Fresh,
	}
}

// OpenDocument opens a document and tags it.
// Request: document_id, path, text. Response: version, generation, spans.
func (s *Server) OpenDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("OpenDocument")

	id, err := requireString(req, "document_id")
	if err != nil {
		return nil, s.toStatus("OpenDocument", err)
	}
	path, err := optionalString(req, "path")
	if err != nil {
		return nil, s.toStatus("OpenDocument", err)
	}
	text, err := optionalString(req, "text")
	if err != nil {
		return nil, s.toStatus("OpenDocument", err)
	}

	doc, err := s.docs.Open(id, path, text)
	if err != nil {
		return nil, s.toStatus("OpenDocument", err)
	}
	e := &entry{doc: doc, index: s.newIndex(doc)}

	snap := doc.Snapshot()
	gen, err := e.index.Publish(snap.Version, nil, s.tagger.Tag(snap.Path, snap.Version, snap.Text))
	if err != nil {
		s.docs.Close(id)
		return nil, s.toStatus("OpenDocument", err)
	}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
	s.metrics.DocumentsOpen.Set(float64(s.docs.Len()))

	return newResponse(generationFields(gen))
}

// CloseDocument forgets a document and its index.
// Request: document_id.
func (s *Server) CloseDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("CloseDocument")

	id, err := requireString(req, "document_id")
	if err != nil {
		return nil, s.toStatus("CloseDocument", err)
	}
	if err := s.docs.Close(id); err != nil {
		return nil, s.toStatus("CloseDocument", err)
	}

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	s.metrics.DocumentsOpen.Set(float64(s.docs.Len()))
	s.metrics.ForgetDocument(id)

	return newResponse(map[string]interface{}{"document_id": id})
}

// retag rebuilds the index at the document's current version. Dirty
// regions are computed from the current generation's anchor, so edits whose
// rebuild failed earlier are retagged too. Callers hold e.writeMu.
func (s *Server) retag(ctx context.Context, e *entry) (*tagspan.Generation[tagger.Tag], error) {
	snap := e.doc.Snapshot()
	gen := e.index.Load()
	if gen == nil {
		return e.index.Publish(snap.Version, nil, s.tagger.Tag(snap.Path, snap.Version, snap.Text))
	}

	changes, err := e.doc.Changes(gen.Tree.Version(), snap.Version)
	if err != nil {
		return nil, err
	}
	dirty := version.DirtyRanges(changes)

	fresh, widened := s.tagger.Retag(snap.Path, snap.Version, snap.Text, dirty)
	return e.index.Rebuild(ctx, snap.Version, widened, fresh)
}

// Edit applies a batch of text edits as one version and retags the
// touched lines. If the rebuild fails the edit stays applied and the next
// rebuild retags its lines.
// Request: document_id, edits [{start, old_length, text}].
func (s *Server) Edit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Edit")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("Edit", err)
	}
	edits, err := decodeEdits(req)
	if err != nil {
		return nil, s.toStatus("Edit", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.doc.ApplyEdits(edits); err != nil {
		return nil, s.toStatus("Edit", err)
	}
	s.metrics.RecordEdit("edit")

	gen, err := s.retag(ctx, e)
	if err != nil {
		return nil, s.toStatus("Edit", err)
	}
	return newResponse(generationFields(gen))
}

// ApplyDiff applies a unified diff as one version and retags the touched
// lines.
// Request: document_id, patch.
func (s *Server) ApplyDiff(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("ApplyDiff")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("ApplyDiff", err)
	}
	patch, err := requireString(req, "patch")
	if err != nil {
		return nil, s.toStatus("ApplyDiff", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.doc.ApplyUnifiedDiff([]byte(patch)); err != nil {
		return nil, s.toStatus("ApplyDiff", err)
	}
	s.metrics.RecordEdit("diff")

	gen, err := s.retag(ctx, e)
	if err != nil {
		return nil, s.toStatus("ApplyDiff", err)
	}
	return newResponse(generationFields(gen))
}

// Retag discards the current generation and tags the whole document again.
// Request: document_id.
func (s *Server) Retag(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Retag")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("Retag", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap := e.doc.Snapshot()
	gen, err := e.index.Publish(snap.Version, nil, s.tagger.Tag(snap.Path, snap.Version, snap.Text))
	if err != nil {
		return nil, s.toStatus("Retag", err)
	}
	return newResponse(generationFields(gen))
}

// Release drops edit history older than before. History the current
// generation or an in-flight query still needs is kept.
// Request: document_id, before. Response: released_before.
func (s *Server) Release(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Release")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("Release", err)
	}
	before, err := requireInt(req, "before")
	if err != nil {
		return nil, s.toStatus("Release", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	limit := version.Version(before)
	if oldest, ok := e.index.OldestAnchor(); ok && oldest < limit {
		limit = oldest
	}
	e.doc.Release(limit)

	return newResponse(map[string]interface{}{"released_before": uint64(limit)})
}

// Contains reports whether a tag span contains a point.
// Request: document_id, point, version (optional). Response: contains.
func (s *Server) Contains(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Contains")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("Contains", err)
	}
	point, err := requireInt(req, "point")
	if err != nil {
		return nil, s.toStatus("Contains", err)
	}
	v, err := requestVersion(req, e.doc.Current())
	if err != nil {
		return nil, s.toStatus("Contains", err)
	}

	gen, done := e.index.Acquire()
	defer done()
	found, err := gen.Tree.HasSpanThatContains(v, point)
	if err != nil {
		return nil, s.toStatus("Contains", err)
	}
	return newResponse(map[string]interface{}{
		"contains": found,
		"version":  uint64(v),
	})
}

// Intersecting returns the tag spans overlapping one range.
// Request: document_id, start, length, version (optional). Response: spans.
func (s *Server) Intersecting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Intersecting")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("Intersecting", err)
	}
	start, err := requireInt(req, "start")
	if err != nil {
		return nil, s.toStatus("Intersecting", err)
	}
	length, err := requireInt(req, "length")
	if err != nil {
		return nil, s.toStatus("Intersecting", err)
	}
	v, err := requestVersion(req, e.doc.Current())
	if err != nil {
		return nil, s.toStatus("Intersecting", err)
	}

	gen, done := e.index.Acquire()
	defer done()
	results, err := gen.Tree.GetIntersectingSpans(v, start, length)
	if err != nil {
		return nil, s.toStatus("Intersecting", err)
	}
	s.metrics.RecordQuery(query.Single.String(), len(results))

	return newResponse(map[string]interface{}{
		"version": uint64(v),
		"spans":   encodeResults(results),
	})
}

// BatchIntersecting returns the tag spans overlapping any of several
// ranges, each reported once.
// Request: document_id, ranges [{start, length}], version (optional).
// Response: strategy, spans.
func (s *Server) BatchIntersecting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("BatchIntersecting")

	e, err := s.lookup(req)
	if err != nil {
		return nil, s.toStatus("BatchIntersecting", err)
	}
	set, err := decodeRanges(req)
	if err != nil {
		return nil, s.toStatus("BatchIntersecting", err)
	}
	v, err := requestVersion(req, e.doc.Current())
	if err != nil {
		return nil, s.toStatus("BatchIntersecting", err)
	}

	start := time.Now()
	gen, done := e.index.Acquire()
	defer done()
	results, err := gen.Tree.AddIntersectingSpans(ctx, v, set, nil, nil)
	strategy := query.Select(len(set), s.cfg.QueryOptions())
	s.log.LogQuery(strategy.String(), len(set), len(results), time.Since(start), err)
	if err != nil {
		return nil, s.toStatus("BatchIntersecting", err)
	}

	return newResponse(map[string]interface{}{
		"version":  uint64(v),
		"strategy": strategy.String(),
		"spans":    encodeResults(results),
	})
}

// Stats reports server and per-document state.
// Request: document_id (optional).
func (s *Server) Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Stats")

	s.opMu.Lock()
	ops := make(map[string]interface{}, len(s.opCounts))
	for op, n := range s.opCounts {
		ops[op] = n
	}
	s.opMu.Unlock()

	fields := map[string]interface{}{
		"documents":      s.docs.Len(),
		"rules":          s.tagger.Len(),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"operations":     ops,
	}

	if _, ok := req.GetFields()["document_id"]; ok {
		e, err := s.lookup(req)
		if err != nil {
			return nil, s.toStatus("Stats", err)
		}
		gen := e.index.Load()
		docFields := generationFields(gen)
		docFields["current_version"] = uint64(e.doc.Current())
		docFields["built_at"] = gen.BuiltAt.UTC().Format(time.RFC3339Nano)
		fields["document"] = docFields
	} else {
		infos := s.docs.List()
		ids := make([]interface{}, len(infos))
		for i, info := range infos {
			ids[i] = info.ID
		}
		fields["document_ids"] = ids
	}

	return newResponse(fields)
}
