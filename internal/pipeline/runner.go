package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/outreach"
	"github.com/teemow/inboxagent/internal/persistence"
	"github.com/teemow/inboxagent/internal/report"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/triage"
)

// DefaultConcurrency is the number of messages handled at once.
const DefaultConcurrency = 4

// DefaultSaveTimeout bounds the final save of a cycle.
const DefaultSaveTimeout = 30 * time.Second

// Options configures a Runner. Source, Router and Store are required.
type Options struct {
	Source mailbox.Source
	Router *triage.Router
	Store  *state.Store

	// Ledger is consulted before any handler runs and marked after each
	// successful commit. It defaults to Store, which marks on Commit.
	Ledger state.Ledger

	// FollowUps runs after the messages of each cycle when set.
	FollowUps *outreach.Engine

	// Reports and Sink publish due reports when both are set.
	Reports *report.Generator
	Sink    report.Sink

	// Persistence saves the store at the end of each cycle when set.
	Persistence persistence.Store

	// FetchPolicy bounds Source.Fetch retries.
	FetchPolicy retry.Policy
	Concurrency int

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Runner executes cycles. Cycles never overlap.
type Runner struct {
	mu   sync.Mutex
	opts Options
}

// NewRunner validates opts and fills in defaults.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("pipeline requires a message source")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("pipeline requires a triage router")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline requires a context store")
	}
	if opts.Ledger == nil {
		opts.Ledger = opts.Store
	}
	if (opts.Reports == nil) != (opts.Sink == nil) {
		return nil, fmt.Errorf("reports need both a generator and a sink")
	}
	if opts.FetchPolicy == (retry.Policy{}) {
		opts.FetchPolicy = retry.DefaultPolicy()
	}
	if err := opts.FetchPolicy.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// Store returns the Context Store the runner commits to.
func (r *Runner) Store() *state.Store {
	return r.opts.Store
}

// RunCycle runs one cycle. The returned summary is non-nil even when the
// cycle aborts, and reflects what was done until then. Work committed
// before an abort or cancellation is kept and saved.
func (r *Runner) RunCycle(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.opts.Now()
	cycleID := newCycleID()
	logger := logging.WithCycle(r.opts.Logger, cycleID)

	ctx, span := instrumentation.StartCycleSpan(ctx, cycleID)
	defer span.End()

	sum := &Summary{
		CycleID:   cycleID,
		StartedAt: started.UTC(),
		Since:     r.opts.Store.Checkpoint(),
		Results:   []Result{},
		Reports:   []ReportResult{},
	}

	err := r.cycle(ctx, logger, sum)

	if saveErr := r.save(ctx); saveErr != nil {
		err = errors.Join(err, saveErr)
	}

	sum.Checkpoint = r.opts.Store.Checkpoint()
	instrumentation.AddSpanEvent(span, "checkpoint",
		attribute.String("agent.checkpoint", sum.Checkpoint.Format(time.RFC3339)))
	sum.FinishedAt = r.opts.Now().UTC()
	duration := sum.FinishedAt.Sub(sum.StartedAt)

	status := sum.Status()
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		logger.Error("cycle aborted", logging.Err(err), logging.Status(status))
	} else {
		instrumentation.SetSpanSuccess(span)
		logger.Info("cycle finished",
			logging.Status(status),
			"fetched", sum.Fetched,
			"processed", sum.Processed,
			"duplicates", sum.Duplicates,
			"unclassified", sum.Unclassified,
			"failed", sum.Failed,
			slog.Duration(logging.KeyDuration, duration))
	}
	r.opts.Metrics.RecordCycle(ctx, status, duration)
	return sum, err
}

func (r *Runner) cycle(ctx context.Context, logger *slog.Logger, sum *Summary) error {
	msgs, err := r.fetch(ctx, sum.Since)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sum.FetchError = err.Error()
		logger.Warn("fetch failed, continuing without new messages", logging.Err(err))
	}
	sum.Fetched = len(msgs)

	if err := r.handleAll(ctx, logger, msgs, sum); err != nil {
		return err
	}
	r.advanceCheckpoint(sum)

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.opts.FollowUps != nil {
		res, err := r.opts.FollowUps.Run(ctx, r.opts.Now())
		sum.FollowUps = res
		r.opts.Metrics.RecordFollowUp(ctx, "advanced", res.Advanced)
		r.opts.Metrics.RecordFollowUp(ctx, "closed", res.Closed)
		if err != nil {
			return fmt.Errorf("follow-up scan failed: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.opts.Reports != nil {
		r.publishDue(ctx, logger, sum)
	}
	return nil
}

func (r *Runner) fetch(ctx context.Context, since time.Time) ([]mailbox.Message, error) {
	notify := func(err error, next time.Duration) {
		r.opts.Logger.Warn("fetch failed, retrying", logging.Err(err), "retry_in", next)
	}
	return retry.Value(ctx, r.opts.FetchPolicy, notify, func(ctx context.Context) ([]mailbox.Message, error) {
		return r.opts.Source.Fetch(ctx, since)
	})
}

// handleAll filters msgs through the ledger and handles the new ones. An
// unavailable ledger aborts with state.ErrLedgerUnavailable.
func (r *Runner) handleAll(ctx context.Context, logger *slog.Logger, msgs []mailbox.Message, sum *Summary) error {
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(msgs))
	)
	record := func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	// Handler failures are recorded per message and never cancel siblings.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var abort error
	for _, msg := range msgs {
		isNew, err := r.opts.Ledger.IsNew(msg.ID)
		if err != nil {
			abort = fmt.Errorf("%w: %w", state.ErrLedgerUnavailable, err)
			break
		}
		if !isNew || !r.opts.Store.Reserve(msg.ID) {
			record(r.duplicate(ctx, msg))
			continue
		}
		if gctx.Err() != nil {
			r.opts.Store.Release(msg.ID)
			break
		}
		g.Go(func() error {
			defer r.opts.Store.Release(msg.ID)
			record(r.handle(gctx, logger, msg))
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].receivedAt.Equal(results[j].receivedAt) {
			return results[i].receivedAt.Before(results[j].receivedAt)
		}
		return results[i].MessageID < results[j].MessageID
	})
	for _, res := range results {
		sum.add(res)
	}
	if abort != nil {
		return abort
	}
	return ctx.Err()
}

func (r *Runner) duplicate(ctx context.Context, msg mailbox.Message) Result {
	r.opts.Metrics.RecordMessage(ctx, "", string(OutcomeDuplicate))
	return Result{MessageID: msg.ID, Outcome: OutcomeDuplicate, receivedAt: msg.ReceivedAt}
}

// handle routes and handles one reserved message and commits its update.
func (r *Runner) handle(ctx context.Context, logger *slog.Logger, msg mailbox.Message) (res Result) {
	res = Result{MessageID: msg.ID, receivedAt: msg.ReceivedAt}
	logger = logging.WithMessage(logger, msg.ID)
	defer func() {
		r.opts.Metrics.RecordMessage(ctx, res.Category, string(res.Outcome))
	}()

	cat, h, err := r.opts.Router.Route(ctx, msg)
	if err != nil && !triage.IsClassificationError(err) {
		return r.fail(logger, res, err)
	}
	res.Category = cat.String()
	if h == nil {
		res.Outcome = OutcomeUnclassified
		if err != nil {
			res.Error = err.Error()
		}
		logger.Info("message left unclassified", logging.SenderHash(msg.Sender), logging.Err(err))
		return res
	}

	hctx, span := instrumentation.StartHandlerSpan(ctx, res.Category, msg.ID)
	start := time.Now()
	update, err := h.Handle(hctx, msg, r.opts.Store)
	if err == nil {
		err = r.commit(msg, update)
	}
	status := instrumentation.StatusSuccess
	if err != nil && !errors.Is(err, state.ErrDedupConflict) {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	span.End()
	r.opts.Metrics.RecordHandler(ctx, res.Category, status, time.Since(start))

	switch {
	case err == nil:
		res.Outcome = OutcomeProcessed
		r.markLedger(logger, msg.ID)
		logger.Debug("message processed", logging.Category(res.Category))
		return res
	case errors.Is(err, state.ErrDedupConflict):
		res.Outcome = OutcomeDuplicate
		return res
	case state.IsInvariantViolation(err):
		logger.Error("update rejected", logging.Category(res.Category), logging.Err(err))
		res.Outcome = OutcomeInvariantViolation
		res.Error = err.Error()
		return res
	default:
		return r.fail(logger, res, err)
	}
}

func (r *Runner) commit(msg mailbox.Message, update state.Update) error {
	if update == nil {
		return &state.InvariantViolation{ID: msg.ID, Reason: "handler returned no update"}
	}
	if update.SourceID() != msg.ID {
		return &state.InvariantViolation{
			Collection: update.Collection(),
			ID:         msg.ID,
			Reason:     fmt.Sprintf("update is keyed by %q", update.SourceID()),
		}
	}
	return r.opts.Store.Commit(update)
}

// markLedger records id in a ledger other than the store. The store has
// already marked it, so a failure here only leaves that ledger behind.
func (r *Runner) markLedger(logger *slog.Logger, id string) {
	if s, ok := r.opts.Ledger.(*state.Store); ok && s == r.opts.Store {
		return
	}
	if err := r.opts.Ledger.MarkProcessed(id); err != nil {
		logger.Warn("failed to mark message in ledger", logging.Err(err))
	}
}

func (r *Runner) fail(logger *slog.Logger, res Result, err error) Result {
	logger.Warn("message handling failed, will retry next cycle", logging.Category(res.Category), logging.Err(err))
	res.Outcome = OutcomeFailed
	res.Error = err.Error()
	return res
}

// advanceCheckpoint moves the cursor to the newest handled message, but
// never past a message that failed: fetching is inclusive of since, so the
// failed message is fetched again next cycle.
func (r *Runner) advanceCheckpoint(sum *Summary) {
	var (
		newest, oldestFailed time.Time
		failed               bool
	)
	for _, res := range sum.Results {
		if res.Outcome.Done() {
			if res.receivedAt.After(newest) {
				newest = res.receivedAt
			}
			continue
		}
		if !failed || res.receivedAt.Before(oldestFailed) {
			oldestFailed, failed = res.receivedAt, true
		}
	}
	if failed && oldestFailed.Before(newest) {
		newest = oldestFailed
	}
	if !newest.IsZero() {
		r.opts.Store.AdvanceCheckpoint(newest)
	}
}

// publishDue generates and publishes each report that is due. A report
// that cannot be published is skipped and not recorded, so it is tried
// again next cycle.
func (r *Runner) publishDue(ctx context.Context, logger *slog.Logger, sum *Summary) {
	now := r.opts.Now()
	for _, kind := range report.Kinds {
		snap := r.opts.Store.Snapshot()
		asOf, due := r.opts.Reports.Due(snap.Reports, kind, now)
		if !due {
			continue
		}
		rctx, span := instrumentation.StartSpan(ctx, "report."+string(kind),
			attribute.String(instrumentation.SpanAttrReportKind, string(kind)))
		rep, err := r.opts.Reports.Generate(snap, kind, asOf)
		res := ReportResult{Kind: string(kind), PeriodStart: rep.PeriodStart, PeriodEnd: rep.PeriodEnd}
		if err == nil {
			err = r.opts.Sink.Publish(rctx, rep)
		}
		if err != nil && !errors.Is(err, report.ErrAlreadyPublished) {
			instrumentation.SetSpanError(span, err)
		}
		span.End()
		switch {
		case err == nil:
			res.Status = ReportPublished
		case errors.Is(err, report.ErrAlreadyPublished):
			res.Status = ReportAlreadyPublished
		default:
			res.Status = ReportSkipped
			res.Error = err.Error()
			logger.Warn("report skipped", logging.ReportKind(string(kind)), logging.Err(err))
		}
		if res.Status != ReportSkipped {
			r.opts.Store.RecordReport(report.Record(rep, now))
			logger.Info("report published", logging.ReportKind(string(kind)), "period_end", rep.PeriodEnd, logging.Status(res.Status))
		}
		r.opts.Metrics.RecordReport(ctx, string(kind), res.Status)
		sum.Reports = append(sum.Reports, res)
	}
}

// save persists the store. It runs even when ctx is cancelled so that
// completed work survives an interrupted cycle.
func (r *Runner) save(ctx context.Context) error {
	if r.opts.Persistence == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultSaveTimeout)
	defer cancel()
	if err := r.opts.Persistence.Save(ctx, r.opts.Store.Snapshot()); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

func newCycleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
