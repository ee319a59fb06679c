package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
)

// ErrAlreadyPublished is returned when a different report was already
// published for the same kind and period.
var ErrAlreadyPublished = errors.New("a different report was already published for this period")

// Sink publishes reports.
type Sink interface {
	Publish(ctx context.Context, r Report) error
}

// Staged is a prepared publication that is not yet visible.
type Staged interface {
	Commit() error
	Abort()
}

// Stager is a Sink whose publication can be prepared first and made
// visible later.
type Stager interface {
	Sink
	Stage(ctx context.Context, r Report) (Staged, error)
}

// FileSink writes each report once to Dir/<kind>-<period end>.txt.
// Publishing identical content again is a no-op.
type FileSink struct {
	Dir string
}

// Path returns the file a report is written to.
func (s FileSink) Path(r Report) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s-%s.txt", r.Kind, r.PeriodEnd.UTC().Format("20060102T150405Z")))
}

// Publish implements Sink.
func (s FileSink) Publish(ctx context.Context, r Report) error {
	staged, err := s.Stage(ctx, r)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// Stage writes the report to a hidden temporary file in Dir. Commit links
// it to its final path, Abort removes it.
func (s FileSink) Stage(_ context.Context, r Report) (Staged, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	path := s.Path(r)
	if err := checkPublished(path, r.Content); err != nil {
		if errors.Is(err, errSamePublished) {
			return stagedFile{}, nil
		}
		return nil, err
	}

	tmp, err := os.CreateTemp(s.Dir, ".report-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	staged := stagedFile{tmp: tmp.Name(), path: path, content: r.Content}
	if _, err := tmp.WriteString(r.Content); err != nil {
		_ = tmp.Close()
		staged.Abort()
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Chmod(0o640); err != nil {
		_ = tmp.Close()
		staged.Abort()
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		staged.Abort()
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return staged, nil
}

var errSamePublished = errors.New("identical report already published")

// checkPublished returns nil when nothing exists at path,
// errSamePublished when content is already there and ErrAlreadyPublished
// when something else is.
func checkPublished(path, content string) error {
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read published report: %w", err)
	case bytes.Equal(existing, []byte(content)):
		return errSamePublished
	default:
		return fmt.Errorf("%s: %w", path, ErrAlreadyPublished)
	}
}

type stagedFile struct {
	tmp     string
	path    string
	content string
}

// Commit hard-links the staged file into place, so an existing report is
// never replaced.
func (f stagedFile) Commit() error {
	if f.tmp == "" {
		return nil
	}
	defer f.Abort()
	if err := os.Link(f.tmp, f.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			if cerr := checkPublished(f.path, f.content); !errors.Is(cerr, errSamePublished) {
				return cerr
			}
			return nil
		}
		return fmt.Errorf("failed to publish report file: %w", err)
	}
	return nil
}

func (f stagedFile) Abort() {
	if f.tmp != "" {
		_ = os.Remove(f.tmp)
	}
}

// MailSink emails reports to fixed recipients.
type MailSink struct {
	Sender mailbox.Sender
	To     []string
	Policy retry.Policy
}

// Publish implements Sink.
func (s MailSink) Publish(ctx context.Context, r Report) error {
	if len(s.To) == 0 {
		return fmt.Errorf("report mail sink has no recipients")
	}
	msg := mailbox.Outgoing{
		To:      s.To,
		Subject: fmt.Sprintf("%s (%s)", r.Kind.Title(), r.PeriodEnd.Format(time.DateOnly)),
		Body:    r.Content,
	}
	return retry.Do(ctx, s.Policy, nil, func(ctx context.Context) error {
		_, err := s.Sender.Send(ctx, msg)
		return err
	})
}

// LogSink writes reports to the log.
type LogSink struct {
	Logger logging.Logger
}

// Publish implements Sink.
func (s LogSink) Publish(_ context.Context, r Report) error {
	s.Logger.Info("report published",
		logging.ReportKind(string(r.Kind)),
		"period_start", r.PeriodStart,
		"period_end", r.PeriodEnd,
		"content", r.Content)
	return nil
}

// MultiSink publishes to every sink, all or nothing as far as the sinks
// allow. Stagers are staged first. The remaining sinks then publish in
// order and the first failure aborts every staged publication. Staged
// publications are committed only after all of them succeeded.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, r Report) error {
	var (
		staged []Staged
		direct []Sink
	)
	abort := func() {
		for _, st := range staged {
			st.Abort()
		}
	}
	for _, s := range m {
		stager, ok := s.(Stager)
		if !ok {
			direct = append(direct, s)
			continue
		}
		st, err := stager.Stage(ctx, r)
		if err != nil {
			abort()
			return err
		}
		staged = append(staged, st)
	}
	for _, s := range direct {
		if err := s.Publish(ctx, r); err != nil {
			abort()
			return err
		}
	}

	var errs []error
	for _, st := range staged {
		if err := st.Commit(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
