// Package service wires the scoring engine, the offline queue and the
// reconciler into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/certifica/internal/adapters/connectivity"
	"github.com/okian/certifica/internal/adapters/mq/queue"
	"github.com/okian/certifica/internal/adapters/mq/reconciler"
	"github.com/okian/certifica/internal/adapters/remote"
	"github.com/okian/certifica/internal/adapters/storage"
	"github.com/okian/certifica/internal/domain/certification"
	"github.com/okian/certifica/internal/domain/dedupe"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/internal/domain/scoring"
	"github.com/okian/certifica/internal/domain/summary"
	"github.com/okian/certifica/pkg/logger"
	"github.com/okian/certifica/pkg/metrics"
)

// Default service configuration.
const (
	defaultActionTimeout = 10 * time.Second
	defaultDedupeSize    = 10000
	stopTimeout          = 30 * time.Second
)

// Submission outcomes reported to metrics.
const (
	outcomeWritten = "written"
	outcomeQueued  = "queued"
	outcomePartial = "partial"
	outcomeFailed  = "failed"
	// outcomeIncomplete marks a submission with rows neither saved nor queued.
	outcomeIncomplete = "incomplete"
)

// Submission is a completed or draft evaluation form.
type Submission struct {
	AcademyID   string             `json:"academy_id" validate:"required"`
	EvaluatorID string             `json:"evaluator_id" validate:"required"`
	Date        time.Time          `json:"evaluation_date"`
	Status      string             `json:"status" validate:"required,oneof=draft completed"`
	Notes       string             `json:"notes" validate:"max=4000"`
	Scores      []model.ScoreEntry `json:"scores" validate:"dive"`
}

// SubmitResult is what a submission produced.
type SubmitResult struct {
	Evaluation model.Evaluation   `json:"evaluation"`
	Tier       certification.Tier `json:"tier"`
	Queued     bool               `json:"queued"`
	// QueuedActions counts the writes deferred to the offline queue.
	QueuedActions int `json:"queued_actions"`
}

// Progress is the live view of a partially filled form.
type Progress struct {
	Overall    int                         `json:"overall"`
	Categories []scoring.CategoryBreakdown `json:"categories"`
	FinalScore float64                     `json:"final_score"`
	Tier       certification.Tier          `json:"tier"`
}

// Service implements the API dependencies for evaluation scoring and sync.
type Service struct {
	mu sync.RWMutex

	// Dependencies
	kv             storage.KV
	sink           remote.Sink
	taxonomySource remote.TaxonomySource
	evaluations    remote.EvaluationReader
	monitor        connectivity.Monitor

	// Configuration
	actionTimeout time.Duration
	dedupeSize    int
	now           func() time.Time

	// Components built on Start
	validate    *validator.Validate
	taxonomy    *remote.CachedSource
	engine      *scoring.Engine
	queue       *queue.DurableQueue
	reconciler  *reconciler.Reconciler
	unsubscribe func()

	started bool
	logger  logger.Logger
}

// New constructs a Service. Storage defaults to memory and connectivity to
// always-connected; a sink and a taxonomy source are required by Start.
func New(opts ...Option) *Service {
	s := &Service{
		actionTimeout: defaultActionTimeout,
		dedupeSize:    defaultDedupeSize,
		now:           time.Now,
		validate:      validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the taxonomy and starts the reconciler. The reconciler runs on
// every transition to connected.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.sink == nil {
		return fmt.Errorf("%w: remote sink", ErrMissingDependency)
	}
	if s.taxonomySource == nil {
		return fmt.Errorf("%w: taxonomy source", ErrMissingDependency)
	}
	if s.kv == nil {
		s.kv = storage.NewMemory()
	}
	if s.monitor == nil {
		s.monitor = connectivity.NewSwitch(true)
	}

	s.logger.Info(ctx, "starting certification service...")

	s.taxonomy = remote.NewCachedSource(s.taxonomySource, s.kv, s.logger.Named("taxonomy"))
	tax, err := s.taxonomy.LoadTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTaxonomyUnavailable, err)
	}
	s.setTaxonomy(ctx, tax)

	s.queue = queue.NewDurableQueue(s.kv, queue.WithLogger(s.logger.Named("queue")))
	s.reconciler = reconciler.New(s.queue, s.sink, s.monitor,
		reconciler.WithActionTimeout(s.actionTimeout),
		reconciler.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))),
		reconciler.WithLogger(s.logger.Named("reconciler")),
	)
	go s.reconciler.Run(context.WithoutCancel(ctx))

	rec := s.reconciler
	s.unsubscribe = s.monitor.Subscribe(func(connected bool) {
		if connected {
			rec.Trigger()
		}
	})
	pending := s.queue.Len(ctx)
	if pending > 0 && s.monitor.IsConnected() {
		rec.Trigger()
	}

	s.started = true
	s.logger.Info(ctx, "certification service started",
		logger.Int("categories", len(tax.Categories())),
		logger.Int("kpis", len(tax.AllKPIs())),
		logger.Int("pending", pending),
		logger.Duration("actionTimeout", s.actionTimeout),
	)
	return nil
}

// setTaxonomy swaps the engine. Must be called with s.mu held.
func (s *Service) setTaxonomy(ctx context.Context, tax *model.Taxonomy) {
	if err := tax.CheckWeights(); err != nil {
		s.logger.Warn(ctx, "category weights are applied as authored", logger.Error(err))
	}
	s.engine = scoring.NewEngine(tax)
}

// Stop unsubscribes from connectivity and waits for an in-flight pass.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping certification service...")
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if err := s.reconciler.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "reconciler shutdown", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "certification service stopped")
}

// snapshot returns the components a request needs.
func (s *Service) snapshot() (*scoring.Engine, *queue.DurableQueue, *reconciler.Reconciler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.engine, s.queue, s.reconciler, nil
}

// RefreshTaxonomy reloads the taxonomy. Evaluations already scored keep
// their totals; new ones use the new snapshot. The load runs without holding
// the service lock so reads and submissions continue meanwhile.
func (s *Service) RefreshTaxonomy(ctx context.Context) (*model.Taxonomy, error) {
	s.mu.RLock()
	started, source := s.started, s.taxonomy
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	tax, err := source.LoadTaxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTaxonomyUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	s.setTaxonomy(ctx, tax)
	return tax, nil
}

// Taxonomy returns the snapshot the service scores against.
func (s *Service) Taxonomy() (*model.Taxonomy, error) {
	engine, _, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return engine.Taxonomy(), nil
}

// Progress computes live progress for a partially filled form.
func (s *Service) Progress(_ context.Context, entries []model.ScoreEntry) (Progress, error) {
	engine, _, _, err := s.snapshot()
	if err != nil {
		return Progress{}, err
	}
	total, err := engine.FinalScore(entries)
	if err != nil {
		metrics.RecordValidationError(validationReason(err))
		return Progress{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	return Progress{
		Overall:    engine.OverallProgress(entries),
		Categories: engine.Breakdown(entries),
		FinalScore: total,
		Tier:       certification.Classify(total),
	}, nil
}

// SubmitEvaluation validates and scores a submission, then writes the
// evaluation and one score record per KPI. Writes that cannot be made now
// are queued, in order, for the reconciler. If the queue fails after part of
// the evaluation was saved, the result describes that part and the error
// wraps ErrIncompleteSubmission.
func (s *Service) SubmitEvaluation(ctx context.Context, sub Submission) (SubmitResult, error) {
	engine, q, _, err := s.snapshot()
	if err != nil {
		return SubmitResult{}, err
	}
	sub.AcademyID = strings.TrimSpace(sub.AcademyID)
	sub.EvaluatorID = strings.TrimSpace(sub.EvaluatorID)
	if err := s.validate.Struct(sub); err != nil {
		metrics.RecordValidationError("submission")
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	total, err := engine.FinalScore(sub.Scores)
	if err != nil {
		metrics.RecordValidationError(validationReason(err))
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	tier := certification.Classify(total)
	metrics.RecordClassification(tier.Name, total)

	date := sub.Date
	if date.IsZero() {
		date = s.now()
	}
	eval := model.Evaluation{
		ID:          uuid.NewString(),
		AcademyID:   sub.AcademyID,
		EvaluatorID: sub.EvaluatorID,
		Date:        date.UTC(),
		Status:      sub.Status,
		Notes:       sub.Notes,
		TotalScore:  total,
		Category:    tier.Name,
	}

	writes := []write{{resource: remote.ResourceEvaluations, record: evaluationRecord(eval)}}
	for _, rec := range scoreRecords(engine.Taxonomy(), eval.ID, sub.Scores) {
		writes = append(writes, write{resource: remote.ResourceEvaluationScores, record: rec})
	}

	written := 0
	if s.monitor.IsConnected() {
		written = s.writeLive(ctx, writes)
	}
	queuedIDs := make([]string, 0, len(writes)-written)
	for _, w := range writes[written:] {
		a, err := q.Enqueue(ctx, w.resource, model.ActionInsert, w.record)
		if err != nil {
			metrics.RecordErrorByComponent("service", "enqueue")
			return s.failSubmission(ctx, q, sub.Status, eval, tier, written, queuedIDs, len(writes), err)
		}
		queuedIDs = append(queuedIDs, a.ID)
	}
	queued := len(queuedIDs)

	outcome := outcomeWritten
	switch {
	case queued > 0 && written > 0:
		outcome = outcomePartial
	case queued > 0:
		outcome = outcomeQueued
	}
	metrics.RecordEvaluationSubmitted(sub.Status, outcome)
	s.logger.Info(ctx, "evaluation submitted",
		logger.String("evaluation_id", eval.ID),
		logger.String("academy_id", eval.AcademyID),
		logger.String("status", eval.Status),
		logger.Float64("total_score", total),
		logger.String("category", tier.Name),
		logger.String("outcome", outcome),
		logger.Int("queued", queued),
	)
	return SubmitResult{Evaluation: eval, Tier: tier, Queued: queued > 0, QueuedActions: queued}, nil
}

// failSubmission handles a queue failure part way through a submission. When
// nothing reached the remote store the actions queued so far are withdrawn
// and the submission fails as a whole. Otherwise what was saved stays, and
// the result describing it is returned with ErrIncompleteSubmission.
func (s *Service) failSubmission(ctx context.Context, q *queue.DurableQueue, status string, eval model.Evaluation, tier certification.Tier, written int, queuedIDs []string, total int, cause error) (SubmitResult, error) {
	err := fmt.Errorf("%w: %w", ErrQueueUnavailable, cause)
	if written == 0 {
		rmErr := q.Remove(ctx, queuedIDs)
		if rmErr == nil {
			metrics.RecordEvaluationSubmitted(status, outcomeFailed)
			return SubmitResult{}, err
		}
		s.logger.Error(ctx, "withdraw queued actions", logger.Error(rmErr))
	}

	metrics.RecordEvaluationSubmitted(status, outcomeIncomplete)
	s.logger.Error(ctx, "evaluation saved incompletely",
		logger.String("evaluation_id", eval.ID),
		logger.Int("written", written),
		logger.Int("queued", len(queuedIDs)),
		logger.Int("total", total),
		logger.Error(cause))
	res := SubmitResult{Evaluation: eval, Tier: tier, Queued: len(queuedIDs) > 0, QueuedActions: len(queuedIDs)}
	return res, fmt.Errorf("%w: evaluation %s: %d of %d writes saved: %w",
		ErrIncompleteSubmission, eval.ID, written+len(queuedIDs), total, err)
}

type write struct {
	resource string
	record   map[string]any
}

// writeLive performs writes in order and stops at the first failure. It
// returns how many were written.
func (s *Service) writeLive(ctx context.Context, writes []write) int {
	for i, w := range writes {
		wctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
		err := s.sink.Insert(wctx, w.resource, w.record)
		cancel()
		if err != nil {
			metrics.RecordErrorByComponent("service", "remote_write")
			s.logger.Warn(ctx, "remote write failed, queueing the rest",
				logger.String("resource", w.resource),
				logger.Int("remaining", len(writes)-i),
				logger.Error(err))
			return i
		}
	}
	return len(writes)
}

func evaluationRecord(e model.Evaluation) map[string]any {
	return map[string]any{
		"id":              e.ID,
		"academy_id":      e.AcademyID,
		"evaluator_id":    e.EvaluatorID,
		"evaluation_date": e.Date,
		"status":          e.Status,
		"notes":           e.Notes,
		"total_score":     e.TotalScore,
		"category":        e.Category,
	}
}

// scoreRecords returns one record per KPI in taxonomy order; unscored KPIs get 0.
func scoreRecords(tax *model.Taxonomy, evaluationID string, entries []model.ScoreEntry) []map[string]any {
	byKPI := make(map[string]model.ScoreEntry, len(entries))
	for _, en := range entries {
		byKPI[en.KPIID] = en
	}
	kpis := tax.AllKPIs()
	out := make([]map[string]any, 0, len(kpis))
	for _, k := range kpis {
		en := byKPI[k.ID]
		out = append(out, map[string]any{
			"id":            uuid.NewString(),
			"evaluation_id": evaluationID,
			"kpi_id":        k.ID,
			"score":         en.Score,
			"comments":      en.Comments,
		})
	}
	return out
}

func validationReason(err error) string {
	switch {
	case errors.Is(err, scoring.ErrScoreOutOfRange):
		return "score_out_of_range"
	case errors.Is(err, scoring.ErrUnknownKPI):
		return "unknown_kpi"
	case errors.Is(err, scoring.ErrDuplicateEntry):
		return "duplicate_entry"
	}
	return "other"
}

// PendingActions returns the offline queue in enqueue order.
func (s *Service) PendingActions(ctx context.Context) ([]model.Action, error) {
	_, q, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return q.PeekAll(ctx), nil
}

// Sync runs a reconciliation pass now, joining one already in flight.
func (s *Service) Sync(ctx context.Context) (reconciler.Result, error) {
	_, _, rec, err := s.snapshot()
	if err != nil {
		return reconciler.Result{}, err
	}
	return rec.Reconcile(ctx), nil
}

// Dashboard summarizes stored evaluations.
func (s *Service) Dashboard(ctx context.Context) (summary.Summary, error) {
	if _, _, _, err := s.snapshot(); err != nil {
		return summary.Summary{}, err
	}
	if s.evaluations == nil {
		return summary.Summary{}, fmt.Errorf("%w: no evaluation reader", ErrDashboardUnavailable)
	}
	evals, err := s.evaluations.ListEvaluations(ctx)
	if err != nil {
		return summary.Summary{}, fmt.Errorf("%w: %w", ErrDashboardUnavailable, err)
	}
	return summary.Summarize(evals), nil
}

// IsConnected reports the connectivity signal.
func (s *Service) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor != nil && s.monitor.IsConnected()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"actionTimeout": s.actionTimeout.String(),
		"dedupeSize":    s.dedupeSize,
	}
	if s.started {
		pending := s.queue.Len(context.Background())
		tax := s.engine.Taxonomy()
		stats["pendingActions"] = pending
		stats["connected"] = s.monitor.IsConnected()
		stats["categories"] = len(tax.Categories())
		stats["kpis"] = len(tax.AllKPIs())
		stats["weightTotal"] = tax.TotalWeight()

		metrics.UpdateQueueSize(pending)
		metrics.UpdateConnected(s.monitor.IsConnected())
	}
	return stats
}
