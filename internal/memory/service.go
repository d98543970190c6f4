package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Nikunikuo/EmotionMemCore/internal/embedding"
	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
	"github.com/Nikunikuo/EmotionMemCore/internal/events"
	"github.com/Nikunikuo/EmotionMemCore/internal/llm"
	"github.com/Nikunikuo/EmotionMemCore/internal/metrics"
	"github.com/Nikunikuo/EmotionMemCore/internal/session"
)

// Save modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// ErrQueueFull rejects an asynchronous save when the background queue
// has no room. Callers should retry later.
var ErrQueueFull = errors.New("memory: background queue full")

const (
	defaultTopK      = 5
	maxTopK          = 50
	contextTurns     = 3
	defaultQueueSize = 256
	defaultWorkers   = 2
	defaultBatchPar  = 4
)

var validate = validator.New()

// ServiceConfig tunes the orchestrator.
type ServiceConfig struct {
	// Mode selects sync (respond after persistence) or async
	// (acknowledge first, persist in the background).
	Mode string
	// QueueSize bounds the async queue.
	QueueSize int
	// Workers is the number of background save goroutines.
	Workers int
	// BatchParallelism caps concurrent items of one batch save.
	BatchParallelism int
	// Sessions, when non-nil, keeps rolling conversation context per
	// (owner, session) and feeds it to the classifier.
	Sessions *session.Store
	// Events, when non-nil, publishes lifecycle events.
	Events *events.Publisher
}

func (c *ServiceConfig) withDefaults() ServiceConfig {
	out := *c
	if out.Mode == "" {
		out.Mode = ModeSync
	}
	if out.QueueSize <= 0 {
		out.QueueSize = defaultQueueSize
	}
	if out.Workers <= 0 {
		out.Workers = defaultWorkers
	}
	if out.BatchParallelism <= 0 {
		out.BatchParallelism = defaultBatchPar
	}
	return out
}

// Service orchestrates the save pipeline (classify, embed, persist)
// and retrieval over a Repository.
type Service struct {
	repo       Repository
	classifier llm.Classifier
	embedder   embedding.Embedder
	cfg        ServiceConfig

	// newID is swappable in tests.
	newID func() string

	queue chan saveJob
	bg    *background
}

// NewService wires the pipeline and, in async mode, starts the
// background workers. Call Shutdown to drain them.
func NewService(repo Repository, classifier llm.Classifier, embedder embedding.Embedder, cfg ServiceConfig) *Service {
	s := &Service{
		repo:       repo,
		classifier: classifier,
		embedder:   embedder,
		cfg:        cfg.withDefaults(),
		newID:      func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	if s.cfg.Mode == ModeAsync {
		s.queue = make(chan saveJob, s.cfg.QueueSize)
		s.bg = startBackground(s)
	}
	return s
}

// Async reports whether saves are acknowledged before persistence.
func (s *Service) Async() bool { return s.cfg.Mode == ModeAsync }

// Save runs the full pipeline synchronously and returns the persisted
// memory.
func (s *Service) Save(ctx context.Context, turn *ConversationTurn) (*SaveResult, error) {
	if err := validateTurn(turn); err != nil {
		metrics.SavesTotal.WithLabelValues("invalid", ModeSync).Inc()
		return nil, err
	}

	start := time.Now()
	res, err := s.processSave(ctx, s.newID(), turn)
	metrics.SaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SavesTotal.WithLabelValues("error", ModeSync).Inc()
		return nil, err
	}
	res.ProcessingTime = time.Since(start)
	metrics.SavesTotal.WithLabelValues("ok", ModeSync).Inc()
	return res, nil
}

// SaveAsync validates, assigns an id and enqueues the pipeline run.
// The returned Ack carries the id the memory will be stored under.
func (s *Service) SaveAsync(ctx context.Context, turn *ConversationTurn) (*Ack, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("memory: service not in async mode")
	}
	if err := validateTurn(turn); err != nil {
		metrics.SavesTotal.WithLabelValues("invalid", ModeAsync).Inc()
		return nil, err
	}

	job := saveJob{id: s.newID(), turn: turn}
	select {
	case s.queue <- job:
		metrics.BackgroundQueueDepth.Inc()
		metrics.SavesTotal.WithLabelValues("queued", ModeAsync).Inc()
		return &Ack{MemoryID: job.id, Queued: true}, nil
	default:
		metrics.SavesTotal.WithLabelValues("rejected", ModeAsync).Inc()
		return nil, ErrQueueFull
	}
}

// BatchSave runs the pipeline for every turn with bounded parallelism.
// Item failures never abort the batch; each is reported by index.
func (s *Service) BatchSave(ctx context.Context, turns []*ConversationTurn) (*BatchResult, error) {
	if len(turns) == 0 {
		return nil, &ValidationError{Field: "memories", Reason: "must not be empty"}
	}

	type slot struct {
		mem *Memory
		err error
	}
	slots := make([]slot, len(turns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchParallelism)
	for i, turn := range turns {
		g.Go(func() error {
			if err := validateTurn(turn); err != nil {
				slots[i] = slot{err: err}
				return nil
			}
			res, err := s.processSave(gctx, s.newID(), turn)
			if err != nil {
				slots[i] = slot{err: err}
				return nil
			}
			slots[i] = slot{mem: res.Memory}
			return nil
		})
	}
	// Workers never return errors; Wait only orders completion.
	_ = g.Wait()

	out := &BatchResult{}
	for i, sl := range slots {
		if sl.err != nil {
			out.FailedCount++
			out.Failed = append(out.Failed, BatchFailure{Index: i, Error: sl.err.Error()})
			continue
		}
		out.SuccessCount++
		out.Memories = append(out.Memories, sl.mem)
	}
	return out, nil
}

// processSave is the shared pipeline: classify the turn, embed the
// summary, persist, then record session context and publish.
func (s *Service) processSave(ctx context.Context, id string, turn *ConversationTurn) (*SaveResult, error) {
	window := s.contextWindow(ctx, turn)

	cls, err := s.classifier.Classify(ctx, turn.UserMessage, turn.AIMessage, window)
	if err != nil {
		return nil, fmt.Errorf("classifying turn: %w", err)
	}

	summary := truncateSummary(cls.Summary)
	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("embedding summary: %w", err)
	}

	mem := &Memory{
		ID:        id,
		OwnerID:   turn.OwnerID,
		SessionID: turn.SessionID,
		Summary:   summary,
		Emotions:  cls.Emotions,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}

	// Once classification and embedding paid off, persistence should
	// not be lost to a caller hanging up mid-request.
	putCtx := context.WithoutCancel(ctx)
	if err := s.repo.Put(putCtx, mem); err != nil {
		return nil, err
	}

	s.recordSession(putCtx, turn)
	if s.cfg.Events != nil {
		if err := s.cfg.Events.MemorySaved(putCtx, mem.ID, mem.OwnerID, emotion.Strings(mem.Emotions)); err != nil {
			slog.Warn("memory: failed to publish saved event", "error", err, "memory_id", mem.ID)
		}
	}

	return &SaveResult{Memory: mem, Degraded: cls.Degraded}, nil
}

func (s *Service) contextWindow(ctx context.Context, turn *ConversationTurn) []llm.Turn {
	if s.cfg.Sessions == nil || turn.SessionID == "" {
		return nil
	}
	entries, err := s.cfg.Sessions.Recent(ctx, turn.OwnerID, turn.SessionID, contextTurns*2)
	if err != nil {
		slog.Warn("memory: failed to load session context", "error", err, "owner_id", turn.OwnerID)
		return nil
	}
	window := make([]llm.Turn, 0, len(entries))
	for _, e := range entries {
		window = append(window, llm.Turn{Role: e.Role, Content: e.Content})
	}
	return window
}

func (s *Service) recordSession(ctx context.Context, turn *ConversationTurn) {
	if s.cfg.Sessions == nil || turn.SessionID == "" {
		return
	}
	err := s.cfg.Sessions.AppendTurn(ctx, turn.OwnerID, turn.SessionID, turn.UserMessage, turn.AIMessage)
	if err != nil {
		slog.Warn("memory: failed to record session turn", "error", err, "owner_id", turn.OwnerID)
	}
}

// Search embeds the query text and runs a filtered similarity search.
// Empty query text short-circuits to no results.
func (s *Service) Search(ctx context.Context, q *SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	filter := QueryFilter{
		OwnerScope: q.OwnerScope,
		TimeRange:  q.TimeRange,
		TopK:       q.TopK,
	}
	if filter.OwnerScope == "" {
		filter.OwnerScope = ScopeAll
	}
	if filter.TopK <= 0 {
		filter.TopK = defaultTopK
	}
	if filter.TopK > maxTopK {
		filter.TopK = maxTopK
	}
	if len(q.Emotions) > 0 {
		filter.Emotions = emotion.Normalize(q.Emotions)
		if len(filter.Emotions) == 0 {
			// Every requested label was unknown; nothing can match.
			metrics.SearchesTotal.WithLabelValues("ok").Inc()
			return nil, nil
		}
	}

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.repo.Query(ctx, vec, filter)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	return results, nil
}

// List pages through stored memories, newest first.
func (s *Service) List(ctx context.Context, q *ListQuery) ([]*Memory, int64, error) {
	filter := ListFilter{
		OwnerID:   q.OwnerID,
		TimeRange: q.TimeRange,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if len(q.Emotions) > 0 {
		filter.Emotions = emotion.Normalize(q.Emotions)
		if len(filter.Emotions) == 0 {
			return nil, 0, nil
		}
	}
	return s.repo.List(ctx, filter)
}

// Get returns one memory by id.
func (s *Service) Get(ctx context.Context, id string) (*Memory, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes a memory. Absent ids are a successful no-op.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if found && s.cfg.Events != nil {
		if perr := s.cfg.Events.MemoryDeleted(ctx, id); perr != nil {
			slog.Warn("memory: failed to publish deleted event", "error", perr, "memory_id", id)
		}
	}
	return found, nil
}

// Stats aggregates store totals and per-label counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting memories: %w", err)
	}
	labels, err := s.repo.EmotionCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting emotions: %w", err)
	}

	stats := &Stats{
		TotalMemories: total,
		Emotions:      labels,
		Categories:    make(map[emotion.Category]int64),
	}
	for label, n := range labels {
		if cat, ok := emotion.CategoryOf(label); ok {
			stats.Categories[cat] += n
		}
	}
	return stats, nil
}

// Shutdown stops accepting async work and waits for in-flight
// background saves, up to the context deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.bg == nil {
		return nil
	}
	return s.bg.stop(ctx)
}

func validateTurn(turn *ConversationTurn) error {
	if turn == nil {
		return &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if err := validate.Struct(turn); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			reason := "is invalid"
			switch f.Tag() {
			case "required":
				reason = "is required"
			case "max":
				reason = fmt.Sprintf("must be at most %s characters", f.Param())
			}
			return &ValidationError{Field: fieldName(f.Field()), Reason: reason}
		}
		return &ValidationError{Field: "body", Reason: "is invalid"}
	}
	return nil
}

func fieldName(structField string) string {
	switch structField {
	case "UserMessage":
		return "user_message"
	case "AIMessage":
		return "ai_message"
	case "OwnerID":
		return "owner_id"
	case "SessionID":
		return "session_id"
	}
	return structField
}

func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= SummaryMaxLen {
		return s
	}
	return string(runes[:SummaryMaxLen])
}
