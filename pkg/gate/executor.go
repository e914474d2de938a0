package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

var (
	// ErrWorkspaceMissing is returned when the workspace root is unset or is
	// not a directory.
	ErrWorkspaceMissing = errors.New("gate: workspace root missing")
	// ErrNoValidators is returned when Evaluate is called with nothing
	// registered.
	ErrNoValidators = errors.New("gate: no validators registered")
)

const (
	DefaultConcurrency = 4
	DefaultTimeout     = 5 * time.Minute
)

// ConstraintSource supplies the catalog to an evaluation.
// *constraints.Registry implements it.
type ConstraintSource interface {
	GetAll(ctx context.Context) []constraints.Constraint
	Applicable(ctx context.Context, ev constraints.Evaluation) []constraints.Constraint
}

// Tracker wraps an operation in a span. *observability.Provider implements it.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// Recorder receives per-control and per-evaluation measurements.
type Recorder interface {
	ObserveControl(control, status string, d time.Duration)
	ObserveEvaluation(passed bool, d time.Duration)
}

// Executor runs registered validators and aggregates their results.
type Executor struct {
	registry    ConstraintSource
	mu          sync.RWMutex
	validators  []Validator
	index       map[string]int
	concurrency int
	timeout     time.Duration
	clock       func() time.Time
	newRunID    func() string
	tracker     Tracker
	recorder    Recorder
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency bounds how many validators run at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the per-validator timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) { e.clock = clock }
}

// WithRunIDGenerator overrides run id generation.
func WithRunIDGenerator(gen func() string) Option {
	return func(e *Executor) { e.newRunID = gen }
}

func WithTracker(t Tracker) Option {
	return func(e *Executor) { e.tracker = t }
}

func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor reading constraints from registry, which
// may be nil for an evaluation without a catalog.
func NewExecutor(registry ConstraintSource, opts ...Option) *Executor {
	e := &Executor{
		registry:    registry,
		index:       make(map[string]int),
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		clock:       time.Now,
		newRunID:    func() string { return "run-" + uuid.NewString() },
		tracker:     nopTracker{},
		recorder:    nopRecorder{},
		logger:      slog.Default().With("component", "gate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds fn under name. Registration order is report order;
// registering an existing name replaces that validator in place.
func (e *Executor) Register(name string, severity constraints.Severity, fn ValidatorFunc) {
	e.RegisterValidator(NewValidator(name, severity, fn))
}

// RegisterValidator adds v. See Register.
func (e *Executor) RegisterValidator(v Validator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[v.Name()]; ok {
		e.validators[i] = v
		return
	}
	e.index[v.Name()] = len(e.validators)
	e.validators = append(e.validators, v)
}

// Validators returns the registered control names in registration order.
func (e *Executor) Validators() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.validators))
	for i, v := range e.validators {
		names[i] = v.Name()
	}
	return names
}

// Evaluate runs every registered validator against gc and aggregates the
// results. It returns an error only when gc or the executor cannot support
// an evaluation at all; every control failure is reported in the result.
func (e *Executor) Evaluate(ctx context.Context, gc GateContext) (res *GateResult, err error) {
	if gc.WorkspaceRoot == "" {
		return nil, ErrWorkspaceMissing
	}
	if info, statErr := os.Stat(gc.WorkspaceRoot); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceMissing, gc.WorkspaceRoot)
	}

	e.mu.RLock()
	validators := make([]Validator, len(e.validators))
	copy(validators, e.validators)
	e.mu.RUnlock()
	if len(validators) == 0 {
		return nil, ErrNoValidators
	}

	runID := e.newRunID()
	ctx, done := e.tracker.TrackOperation(ctx, "gate.evaluate", attribute.String("archgate.run_id", runID))
	defer func() { done(err) }()

	start := e.clock()
	ev := newEvaluation()
	if err := ev.fire(ctx, eventStart); err != nil {
		return nil, err
	}

	in := Input{RunID: runID, Context: gc}
	total := 0
	if e.registry != nil {
		total = len(e.registry.GetAll(ctx))
		in.Constraints = e.registry.Applicable(ctx, gc.Evaluation())
	}

	results := make([]*ControlResult, len(validators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, v := range validators {
		g.Go(func() error {
			results[i] = e.run(gctx, v, in)
			return nil
		})
	}
	_ = g.Wait()

	passed := true
	var escalation constraints.Severity
	for _, r := range results {
		if r.Passed() {
			continue
		}
		passed = false
		if s := highestSeverity(r); s.Rank() > escalation.Rank() {
			escalation = s
		}
	}

	event := eventPass
	if !passed {
		event = eventFail
	}
	if err := ev.fire(ctx, event); err != nil {
		return nil, err
	}

	res = &GateResult{
		RunID:                 runID,
		Passed:                passed,
		State:                 ev.state(),
		ControlResults:        results,
		Escalation:            escalation,
		ConstraintsTotal:      total,
		ConstraintsApplicable: len(in.Constraints),
		Timestamp:             start.UTC(),
	}
	res.ReportMarkdown = RenderReport(res)

	e.recorder.ObserveEvaluation(passed, e.clock().Sub(start))
	e.logger.InfoContext(ctx, "gate evaluated",
		"run_id", runID,
		"passed", passed,
		"controls", len(results),
		"failed", len(res.Failed()),
		"escalation", escalation,
	)
	return res, nil
}

type outcome struct {
	result *ControlResult
	err    error
}

// run executes one validator in isolation and always returns a well-formed
// result.
func (e *Executor) run(ctx context.Context, v Validator, in Input) *ControlResult {
	name, severity := v.Name(), v.Severity()
	ctx, done := e.tracker.TrackOperation(ctx, "gate.control", attribute.String("archgate.control", name))

	start := e.clock()
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		r, err := v.Validate(tctx, in)
		ch <- outcome{result: r, err: err}
	}()

	var res *ControlResult
	var failure error
	select {
	case o := <-ch:
		if o.err != nil {
			failure = o.err
			res = internalError(name, severity, CodeInternalError, fmt.Sprintf("%s: internal error: %v", name, o.err))
		} else if reason := malformed(name, o.result); reason != "" {
			failure = errors.New(reason)
			res = internalError(name, severity, CodeInternalError, fmt.Sprintf("%s: malformed result: %s", name, reason))
		} else {
			res = normalize(name, severity, o.result)
		}
	case <-tctx.Done():
		failure = tctx.Err()
		res = internalError(name, severity, CodeTimeout, fmt.Sprintf("%s: did not complete within %s: %v", name, e.timeout, tctx.Err()))
	}

	end := e.clock()
	res.Timestamp = end.UTC()
	res.DurationMs = end.Sub(start).Milliseconds()

	if failure != nil {
		e.logger.WarnContext(ctx, "control failed internally", "control", name, "error", failure)
	}
	e.recorder.ObserveControl(name, string(res.Status), end.Sub(start))
	done(failure)
	return res
}

// malformed describes why r cannot be accepted, or returns "".
func malformed(name string, r *ControlResult) string {
	switch {
	case r == nil:
		return "nil result"
	case r.ControlName != "" && r.ControlName != name:
		return fmt.Sprintf("result names control %q", r.ControlName)
	case r.Status != StatusPass && r.Status != StatusFail:
		return fmt.Sprintf("invalid status %q", r.Status)
	case r.Status == StatusPass && len(r.Violations) > 0:
		return "PASS result carries violations"
	}
	for i, v := range r.Violations {
		if v.Code == "" {
			return fmt.Sprintf("violation %d has no code", i)
		}
	}
	return ""
}

// normalize copies r, stamping the configured name and severity. Violations
// without a severity inherit the control's.
func normalize(name string, severity constraints.Severity, r *ControlResult) *ControlResult {
	out := &ControlResult{
		ControlName: name,
		Status:      r.Status,
		Severity:    severity,
		Evidence:    append([]EvidenceReference{}, r.Evidence...),
		Violations:  make([]Violation, len(r.Violations)),
		Message:     r.Message,
	}
	for i, v := range r.Violations {
		v.Evidence = append([]EvidenceReference{}, v.Evidence...)
		if !v.Severity.Valid() {
			v.Severity = severity
		}
		out.Violations[i] = v
	}
	return out
}

func internalError(name string, severity constraints.Severity, code, message string) *ControlResult {
	return &ControlResult{
		ControlName: name,
		Status:      StatusFail,
		Severity:    severity,
		Evidence:    []EvidenceReference{},
		Violations: []Violation{{
			Code:     code,
			Message:  message,
			Severity: severity,
			Evidence: []EvidenceReference{},
		}},
		Message: message,
	}
}

// highestSeverity is the most urgent severity on a failing result. A FAIL
// without violations escalates at the control's own severity.
func highestSeverity(r *ControlResult) constraints.Severity {
	if len(r.Violations) == 0 {
		return r.Severity
	}
	var best constraints.Severity
	for _, v := range r.Violations {
		if v.Severity.Rank() > best.Rank() {
			best = v.Severity
		}
	}
	return best
}

type nopTracker struct{}

func (nopTracker) TrackOperation(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

type nopRecorder struct{}

func (nopRecorder) ObserveControl(string, string, time.Duration) {}
func (nopRecorder) ObserveEvaluation(bool, time.Duration)         {}
