package server

import (
	"context"
	"sync"
	"time"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/pipeline"
)

// CycleStatus is what is remembered about the most recent cycle.
type CycleStatus struct {
	CycleID    string    `json:"cycle_id"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Aborted reports whether the cycle stopped with an error.
func (s CycleStatus) Aborted() bool {
	return s.Error != ""
}

// ServerContext holds the context for the agent server
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	app    *app.App
	audit  *instrumentation.AuditLogger

	mu       sync.RWMutex
	last     *CycleStatus
	cycles   int
	shutdown bool
}

// NewServerContext creates a new server context around a wired agent.
func NewServerContext(ctx context.Context, a *app.App) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		app:    a,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// App returns the wired agent.
func (sc *ServerContext) App() *app.App {
	return sc.app
}

// Metrics returns the agent's metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.app.Metrics
}

// SetAuditLogger sets the audit logger used for operator tool calls.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.audit = al
}

// AuditLogger returns the audit logger, or nil when auditing is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.audit
}

// RunCycle runs one cycle and records its outcome.
func (sc *ServerContext) RunCycle(ctx context.Context) (*pipeline.Summary, error) {
	sum, err := sc.app.Runner.RunCycle(ctx)
	sc.RecordCycle(sum, err)
	return sum, err
}

// RecordCycle remembers the outcome of a cycle run elsewhere, e.g. by the
// scheduler.
func (sc *ServerContext) RecordCycle(sum *pipeline.Summary, err error) {
	status := CycleStatus{FinishedAt: sc.app.Now().UTC()}
	if sum != nil {
		status.CycleID = sum.CycleID
		status.FinishedAt = sum.FinishedAt
		status.Status = sum.Status()
		status.Processed = sum.Processed
		status.Failed = sum.Failed
	}
	if err != nil {
		status.Error = err.Error()
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.last = &status
	sc.cycles++
}

// LastCycle returns the most recent cycle, if any ran.
func (sc *ServerContext) LastCycle() (CycleStatus, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.last == nil {
		return CycleStatus{}, false
	}
	return *sc.last, true
}

// Cycles returns how many cycles ran since start.
func (sc *ServerContext) Cycles() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cycles
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. Closing the agent is left to its
// owner.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
