package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/gmail"
	"github.com/teemow/inboxagent/internal/handlers"
	"github.com/teemow/inboxagent/internal/imap"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/outreach"
	"github.com/teemow/inboxagent/internal/persistence"
	"github.com/teemow/inboxagent/internal/pipeline"
	"github.com/teemow/inboxagent/internal/report"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/triage"
)

// App is a fully wired agent.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Metrics     *instrumentation.Metrics
	Store       *state.Store
	Persistence persistence.Store
	Source      mailbox.Source
	Sender      mailbox.Sender
	Inferer     llm.Inferer
	Tender      *handlers.Tender
	FollowUps   *outreach.Engine
	Reports     *report.Generator
	Sink        report.Sink
	Runner      *pipeline.Runner

	now func() time.Time
}

// Options overrides collaborators, mainly for tests. Nil fields are built
// from the configuration.
type Options struct {
	Source      mailbox.Source
	Sender      mailbox.Sender
	Attachments mailbox.AttachmentStore
	Inferer     llm.Inferer
	Persistence persistence.Store
	Now         func() time.Time
}

// Build wires an App. The caller owns it and must Close it.
func Build(ctx context.Context, cfg config.Config, metrics *instrumentation.Metrics, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics, now: opts.Now}
	if a.now == nil {
		a.now = time.Now
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Persistence = opts.Persistence
	if a.Persistence == nil {
		if a.Persistence, err = persistence.Open(ctx, cfg.Persistence); err != nil {
			return nil, err
		}
	}
	if a.Store, err = persistence.LoadState(ctx, a.Persistence); err != nil {
		return nil, err
	}

	attachments := opts.Attachments
	a.Source, attachments, err = a.buildSource(ctx, opts.Source, attachments)
	if err != nil {
		return nil, err
	}
	if a.Sender = opts.Sender; a.Sender == nil {
		if a.Sender, err = a.buildSender(ctx); err != nil {
			return nil, err
		}
	}
	if a.Inferer = opts.Inferer; a.Inferer == nil {
		if a.Inferer, err = a.buildInferer(ctx); err != nil {
			return nil, err
		}
	}

	intervals, err := cfg.Intervals()
	if err != nil {
		return nil, err
	}
	windows, err := cfg.Windows()
	if err != nil {
		return nil, err
	}
	policy := cfg.RetryPolicy()

	a.Tender = handlers.NewTender(attachments, cfg.Tender.Dir, cfg.TenderPolicy(), a.now, logger)

	keywords := triage.NewKeywordClassifier(a.Store)
	if len(cfg.Tender.Keywords) > 0 {
		keywords.TenderKeywords = cfg.Tender.Keywords
	}
	router, err := triage.NewRouter(triage.Chain{keywords, triage.NewInferenceClassifier(a.Inferer)}, triage.Routes{
		triage.MedicalNews:    handlers.NewMedical(a.Inferer, a.now),
		triage.KOCTender:      a.Tender,
		triage.NeedsResponse:  handlers.NewDrafting(a.Inferer, a.now),
		triage.OutreachTarget: handlers.NewOutreach(a.Sender, cfg.Outreach.Templates, intervals, policy, a.now, logger),
	})
	if err != nil {
		return nil, err
	}

	if a.FollowUps, err = outreach.NewEngine(a.Store, a.Sender, cfg.Outreach.Templates, intervals, policy, logger); err != nil {
		return nil, err
	}
	if a.Reports, err = report.NewGenerator(windows); err != nil {
		return nil, err
	}
	a.Sink = a.buildSink()

	a.Runner, err = pipeline.NewRunner(pipeline.Options{
		Source:      a.Source,
		Router:      router,
		Store:       a.Store,
		FollowUps:   a.FollowUps,
		Reports:     a.Reports,
		Sink:        a.Sink,
		Persistence: a.Persistence,
		FetchPolicy: policy,
		Concurrency: cfg.Concurrency,
		Metrics:     metrics,
		Logger:      logger,
		Now:         a.now,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildSource(ctx context.Context, src mailbox.Source, att mailbox.AttachmentStore) (mailbox.Source, mailbox.AttachmentStore, error) {
	if src != nil {
		if att == nil {
			att = mailbox.NewMemoryAttachments()
		}
		return src, att, nil
	}

	cfg := a.Config
	switch cfg.Source.Type {
	case config.SourceGmail:
		c, err := gmail.NewForAccount(ctx, cfg.Google, a.Metrics, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		if att == nil {
			att = c
		}
		return c, att, nil
	case config.SourceIMAP:
		s, err := imap.New(cfg.IMAP, a.Metrics, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		if att == nil {
			att = s
		}
		return s, att, nil
	case config.SourceReplay:
		s, err := mailbox.LoadStaticSource(cfg.Source.ReplayFile)
		if err != nil {
			return nil, nil, err
		}
		if att == nil {
			att = mailbox.NewMemoryAttachments()
		}
		return s, att, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

func (a *App) buildSender(ctx context.Context) (mailbox.Sender, error) {
	switch a.Config.Sender.Type {
	case config.SenderGmail:
		if c, ok := a.Source.(*gmail.Client); ok {
			return c, nil
		}
		return gmail.NewForAccount(ctx, a.Config.Google, a.Metrics, a.Logger)
	case config.SenderLog:
		return mailbox.NewLogSender(a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown sender type %q", a.Config.Sender.Type)
	}
}

func (a *App) buildInferer(ctx context.Context) (llm.Inferer, error) {
	switch a.Config.Inference.Provider {
	case config.InferenceGemini:
		return llm.NewGemini(ctx, a.Config.GeminiConfig(), a.Config.RetryPolicy(), a.Logger)
	case config.InferenceLocal:
		return llm.Local{}, nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", a.Config.Inference.Provider)
	}
}

func (a *App) buildSink() report.Sink {
	var sinks report.MultiSink
	if a.Config.Reports.Dir != "" {
		sinks = append(sinks, report.FileSink{Dir: a.Config.Reports.Dir})
	}
	if len(a.Config.Reports.Recipients) > 0 {
		sinks = append(sinks, report.MailSink{Sender: a.Sender, To: a.Config.Reports.Recipients, Policy: a.Config.RetryPolicy()})
	}
	if a.Config.Reports.Log || len(sinks) == 0 {
		sinks = append(sinks, report.LogSink{Logger: a.Logger})
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}

// Save persists the current store.
func (a *App) Save(ctx context.Context) error {
	return a.Persistence.Save(ctx, a.Store.Snapshot())
}

// Now returns the app clock's current time.
func (a *App) Now() time.Time {
	return a.now()
}

// Close releases the persistence backend.
func (a *App) Close() error {
	if a.Persistence == nil {
		return nil
	}
	return a.Persistence.Close()
}
