package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxagent/internal/google"
	"github.com/teemow/inboxagent/internal/imap"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/outreach"
	"github.com/teemow/inboxagent/internal/persistence"
	"github.com/teemow/inboxagent/internal/report"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
)

// Source types.
const (
	SourceGmail  = "gmail"
	SourceIMAP   = "imap"
	SourceReplay = "replay"
)

// Sender types.
const (
	SenderGmail = "gmail"
	SenderLog   = "log"
)

// Inference providers.
const (
	InferenceGemini = "gemini"
	InferenceLocal  = "local"
)

const (
	DefaultPollInterval = 15 * time.Minute
	DefaultConcurrency  = 4
	DefaultGeminiModel  = "gemini-2.5-flash"
)

// Config is the complete agent configuration.
type Config struct {
	Source      SourceConfig       `yaml:"source"`
	Sender      SenderConfig       `yaml:"sender"`
	Google      google.Config      `yaml:"google"`
	IMAP        imap.Config        `yaml:"imap"`
	Inference   InferenceConfig    `yaml:"inference"`
	Persistence persistence.Config `yaml:"persistence"`
	Outreach    OutreachConfig     `yaml:"outreach"`
	Reports     ReportsConfig      `yaml:"reports"`
	Retry       RetryConfig        `yaml:"retry"`
	Tender      TenderConfig       `yaml:"tender"`
	Log         LogConfig          `yaml:"log"`

	// PollInterval is the time between cycles in serve mode.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Concurrency bounds how many handlers run at once.
	Concurrency int `yaml:"concurrency"`
}

// SourceConfig selects where messages come from.
type SourceConfig struct {
	Type string `yaml:"type"`
	// ReplayFile is a JSON array of messages, used when Type is replay.
	ReplayFile string `yaml:"replay_file"`
}

// SenderConfig selects how outgoing mail is delivered.
type SenderConfig struct {
	Type string `yaml:"type"`
}

// InferenceConfig selects the inference capability.
type InferenceConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"-"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// OutreachConfig configures the supplier outreach state machine.
type OutreachConfig struct {
	// Intervals maps an entered stage to the delay before the next action.
	Intervals map[string]time.Duration `yaml:"intervals"`
	Templates outreach.Templates       `yaml:"templates"`
}

// ReportsConfig configures report windows and sinks.
type ReportsConfig struct {
	// Windows maps a report kind to its period length.
	Windows map[string]time.Duration `yaml:"windows"`
	// Dir receives one file per published report. Empty disables the file sink.
	Dir string `yaml:"dir"`
	// Recipients are emailed every published report.
	Recipients []string `yaml:"recipients"`
	// Log writes published reports to the log.
	Log bool `yaml:"log"`
}

// RetryConfig is the retry policy for provider calls.
type RetryConfig struct {
	MaxAttempts     uint          `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
}

// TenderConfig configures KOC tender attachment handling.
type TenderConfig struct {
	Dir         string   `yaml:"dir"`
	MaxAttempts uint     `yaml:"max_attempts"`
	Keywords    []string `yaml:"keywords"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := defaultDataDir()
	policy := retry.DefaultPolicy()

	intervals := map[string]time.Duration{}
	for stage, d := range outreach.DefaultIntervals() {
		intervals[string(stage)] = d
	}
	windows := map[string]time.Duration{}
	for kind, d := range report.DefaultWindows() {
		windows[string(kind)] = d
	}

	return Config{
		Source:    SourceConfig{Type: SourceGmail},
		Sender:    SenderConfig{Type: SenderLog},
		Inference: InferenceConfig{Provider: InferenceLocal, Model: DefaultGeminiModel},
		Persistence: persistence.Config{
			Type: persistence.TypeFile,
			Path: filepath.Join(dataDir, "context.json"),
		},
		Outreach: OutreachConfig{Intervals: intervals},
		Reports: ReportsConfig{
			Windows: windows,
			Dir:     filepath.Join(dataDir, "reports"),
		},
		Retry: RetryConfig{
			MaxAttempts:     policy.MaxAttempts,
			InitialInterval: policy.InitialInterval,
			MaxInterval:     policy.MaxInterval,
			AttemptTimeout:  policy.AttemptTimeout,
		},
		Tender: TenderConfig{
			Dir:         filepath.Join(dataDir, "tenders"),
			MaxAttempts: retry.DefaultMaxAttempts,
		},
		Log:          LogConfig{Level: "info", Format: "text"},
		PollInterval: DefaultPollInterval,
		Concurrency:  DefaultConcurrency,
	}
}

// Load resolves defaults, the YAML file at path (if path is not empty) and
// the environment, then applies overrides in order and validates the
// result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error

	switch c.Source.Type {
	case SourceGmail:
		errs = append(errs, c.Google.Validate())
	case SourceIMAP:
		errs = append(errs, c.IMAP.Validate())
	case SourceReplay:
		if c.Source.ReplayFile == "" {
			errs = append(errs, errors.New("source.replay_file is required for the replay source"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid source type %q, must be one of: gmail, imap, replay", c.Source.Type))
	}

	switch c.Sender.Type {
	case SenderLog:
	case SenderGmail:
		if c.Source.Type != SourceGmail {
			errs = append(errs, c.Google.Validate())
		}
	default:
		errs = append(errs, fmt.Errorf("invalid sender type %q, must be one of: gmail, log", c.Sender.Type))
	}

	switch c.Inference.Provider {
	case InferenceLocal:
	case InferenceGemini:
		if c.Inference.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid inference provider %q, must be one of: gemini, local", c.Inference.Provider))
	}

	switch c.Persistence.Type {
	case persistence.TypeFile, persistence.TypeSQLite:
		if c.Persistence.Path == "" {
			errs = append(errs, errors.New("persistence.path is required"))
		}
	case persistence.TypeValkey:
		if c.Persistence.Valkey.URL == "" {
			errs = append(errs, errors.New("persistence.valkey.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid persistence type %q, must be one of: file, sqlite, valkey", c.Persistence.Type))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Tender.Dir == "" {
		errs = append(errs, errors.New("tender.dir is required"))
	}

	errs = append(errs, c.RetryPolicy().Validate(), c.TenderPolicy().Validate())
	if _, err := c.Intervals(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Windows(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RetryPolicy returns the policy for provider calls.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.InitialInterval = c.Retry.InitialInterval
	p.MaxInterval = c.Retry.MaxInterval
	p.AttemptTimeout = c.Retry.AttemptTimeout
	return p
}

// TenderPolicy returns the policy for tender attachment downloads.
func (c Config) TenderPolicy() retry.Policy {
	p := c.RetryPolicy()
	p.MaxAttempts = c.Tender.MaxAttempts
	return p
}

// Intervals converts the configured follow-up intervals.
func (c Config) Intervals() (outreach.Intervals, error) {
	iv := outreach.Intervals{}
	for name, d := range c.Outreach.Intervals {
		stage := state.Stage(name)
		switch stage {
		case state.StageInitial, state.StageFollowedUp1, state.StageFollowedUp2:
			iv[stage] = d
		default:
			return nil, fmt.Errorf("invalid outreach interval stage %q", name)
		}
	}
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	return iv, nil
}

// Windows converts the configured report windows.
func (c Config) Windows() (report.Windows, error) {
	w := report.Windows{}
	for name, d := range c.Reports.Windows {
		kind, err := report.ParseKind(name)
		if err != nil {
			return nil, err
		}
		w[kind] = d
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// GeminiConfig returns the settings for the Gemini inferer.
func (c Config) GeminiConfig() llm.GeminiConfig {
	return llm.GeminiConfig{
		APIKey:          c.Inference.APIKey,
		Model:           c.Inference.Model,
		Temperature:     c.Inference.Temperature,
		MaxOutputTokens: c.Inference.MaxOutputTokens,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "inboxagent")
	}
	return ".inboxagent"
}

// Mailbox names the mailbox the agent runs as: the IMAP user, the Google
// account, or the replay file.
func (c Config) Mailbox() string {
	switch c.Source.Type {
	case SourceIMAP:
		return c.IMAP.Username
	case SourceReplay:
		return "replay:" + filepath.Base(c.Source.ReplayFile)
	default:
		if c.Google.Account == "" {
			return google.DefaultAccount
		}
		return c.Google.Account
	}
}
