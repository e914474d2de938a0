package acr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// IDPrefix prefixes generated ACR ids.
const IDPrefix = "ACR-"

// Workflow creates and reviews ACRs.
type Workflow struct {
	store    Store
	locker   Locker
	notifier Notifier
	clock    func() time.Time
	newID    func() string
	tracker  Tracker
	logger   *slog.Logger
}

// Tracker wraps an operation in a span. *observability.Provider implements it.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLocker replaces the in-process per-id lock, e.g. with a RedisLocker
// when several processes share a store.
func WithLocker(l Locker) Option { return func(w *Workflow) { w.locker = l } }

// WithNotifier publishes lifecycle events.
func WithNotifier(n Notifier) Option { return func(w *Workflow) { w.notifier = n } }

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option { return func(w *Workflow) { w.clock = clock } }

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option { return func(w *Workflow) { w.newID = gen } }

// WithTracker traces Create and Review.
func WithTracker(t Tracker) Option { return func(w *Workflow) { w.tracker = t } }

// WithLogger overrides the workflow logger.
func WithLogger(l *slog.Logger) Option { return func(w *Workflow) { w.logger = l } }

// NewWorkflow creates a workflow over store.
func NewWorkflow(store Store, opts ...Option) *Workflow {
	w := &Workflow{
		store:  store,
		locker: NewKeyedMutex(),
		clock:  time.Now,
		newID:  func() string { return IDPrefix + uuid.NewString() },
		logger: slog.Default().With("component", "acr"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Validate checks the required fields of a create request.
func (o CreateOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Summary) == "":
		return required("summary")
	case strings.TrimSpace(o.Description) == "":
		return required("description")
	case strings.TrimSpace(o.Justification) == "":
		return required("justification")
	case len(o.AffectedFiles) == 0:
		return &ValidationError{Field: "affectedFiles", Message: "must not be empty"}
	}
	for i, f := range o.AffectedFiles {
		if strings.TrimSpace(f) == "" {
			return &ValidationError{Field: "affectedFiles", Message: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	if o.RiskLevel != "" && !o.RiskLevel.valid() {
		return &ValidationError{Field: "riskLevel", Message: fmt.Sprintf("unknown risk level %q", o.RiskLevel)}
	}
	return nil
}

// Create validates opts and persists a new PENDING ACR. Invalid input yields
// a *ValidationError and nothing is stored.
func (w *Workflow) Create(ctx context.Context, opts CreateOptions) (_ *ACR, err error) {
	if w.tracker != nil {
		var done func(error)
		ctx, done = w.tracker.TrackOperation(ctx, "acr.create")
		defer func() { done(err) }()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	a := &ACR{
		ID:                 w.newID(),
		Summary:            strings.TrimSpace(opts.Summary),
		Description:        strings.TrimSpace(opts.Description),
		Justification:      strings.TrimSpace(opts.Justification),
		AffectedFiles:      append([]string(nil), opts.AffectedFiles...),
		AffectedComponents: append([]string(nil), opts.AffectedComponents...),
		RiskLevel:          opts.RiskLevel,
		Alternatives:       opts.Alternatives,
		BreakingChanges:    opts.BreakingChanges,
		MigrationRequired:  opts.MigrationRequired,
		RelatedIssues:      append([]string(nil), opts.RelatedIssues...),
		BuildID:            opts.BuildID,
		SequenceID:         opts.SequenceID,
		CommitSHA:          opts.CommitSHA,
		Branch:             opts.Branch,
		Status:             StatusPending,
		CreatedAt:          w.clock().UTC(),
	}

	unlock, err := w.locker.Lock(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("acr create: %w", err)
	}
	defer unlock()

	if err := w.store.Insert(ctx, a); err != nil {
		return nil, fmt.Errorf("acr create: %w", err)
	}
	w.logger.InfoContext(ctx, "acr created", "id", a.ID, "files", len(a.AffectedFiles))
	w.notify(ctx, EventCreated, a)
	return a, nil
}

// Get returns the ACR with id or an error wrapping ErrACRNotFound.
func (w *Workflow) Get(ctx context.Context, id string) (*ACR, error) {
	return w.store.Get(ctx, id)
}

// ListPending returns ACRs awaiting a decision (PENDING or DISCUSS), oldest
// first.
func (w *Workflow) ListPending(ctx context.Context) ([]*ACR, error) {
	acrs, err := w.store.ListByStatus(ctx, StatusPending, StatusDiscuss)
	if err != nil {
		return nil, fmt.Errorf("acr list pending: %w", err)
	}
	sortByCreation(acrs)
	return acrs, nil
}

// FindApproved returns the APPROVED ACRs whose provenance matches p, oldest
// first.
func (w *Workflow) FindApproved(ctx context.Context, p Provenance) ([]*ACR, error) {
	acrs, err := w.store.ListByStatus(ctx, StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("acr find approved: %w", err)
	}
	out := make([]*ACR, 0, len(acrs))
	for _, a := range acrs {
		if a.MatchesProvenance(p) {
			out = append(out, a)
		}
	}
	sortByCreation(out)
	return out, nil
}

func failed(f Failure, msg string, a *ACR) *ReviewResult {
	return &ReviewResult{Success: false, Failure: f, Error: msg, ACR: a}
}

// InvalidDecisionMessage describes an unacceptable decision value.
func InvalidDecisionMessage(decision string) string {
	valid := make([]string, 0, 3)
	for _, d := range ValidDecisions() {
		valid = append(valid, string(d))
	}
	return fmt.Sprintf("invalid decision %q: must be one of %s", decision, strings.Join(valid, ", "))
}

// Review records a decision. Request problems (unknown id, invalid decision,
// closed ACR) are reported in the result; the error return is reserved for
// storage and locking failures.
func (w *Workflow) Review(ctx context.Context, opts ReviewOptions) (_ *ReviewResult, err error) {
	if w.tracker != nil {
		var done func(error)
		ctx, done = w.tracker.TrackOperation(ctx, "acr.review",
			attribute.String("archgate.acr.id", opts.ACRID),
			attribute.String("archgate.acr.decision", opts.Decision))
		defer func() { done(err) }()
	}
	decision, ok := ParseDecision(opts.Decision)
	if !ok {
		return failed(FailureInvalidDecision, InvalidDecisionMessage(opts.Decision), nil), nil
	}
	if strings.TrimSpace(opts.ACRID) == "" {
		return failed(FailureInvalidRequest, "acrId is required", nil), nil
	}
	if strings.TrimSpace(opts.ReviewedBy) == "" {
		return failed(FailureInvalidRequest, "reviewedBy is required", nil), nil
	}

	unlock, err := w.locker.Lock(ctx, opts.ACRID)
	if err != nil {
		return nil, fmt.Errorf("acr review: %w", err)
	}
	defer unlock()

	a, err := w.store.Get(ctx, opts.ACRID)
	if errors.Is(err, ErrACRNotFound) {
		return failed(FailureNotFound, "not found", nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("acr review: %w", err)
	}

	next, err := transition(ctx, a.Status, decision)
	if errors.Is(err, errTerminal) {
		return failed(FailureTerminal, fmt.Sprintf("%s is already %s", a.ID, a.Status), a), nil
	}
	if err != nil {
		return nil, fmt.Errorf("acr review: %w", err)
	}

	now := w.clock().UTC()
	a.Status = next
	a.ReviewedBy = strings.TrimSpace(opts.ReviewedBy)
	a.Comments = opts.Comments
	a.DecidedAt = &now

	if err := w.store.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("acr review: %w", err)
	}
	w.logger.InfoContext(ctx, "acr reviewed", "id", a.ID, "decision", decision, "status", a.Status, "reviewer", a.ReviewedBy)
	w.notify(ctx, EventReviewed, a)
	return &ReviewResult{Success: true, ACR: a}, nil
}

func (w *Workflow) notify(ctx context.Context, t EventType, a *ACR) {
	if w.notifier == nil {
		return
	}
	ev := Event{Type: t, ACR: a.Clone(), OccurredAt: w.clock().UTC()}
	if err := w.notifier.Notify(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "acr event not delivered", "id", a.ID, "type", t, "error", err)
	}
}
