package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
)

const (
	// DefaultAddr is Yahoo Mail's IMAPS endpoint.
	DefaultAddr = "imap.mail.yahoo.com:993"

	// DefaultMailbox is the folder that is scanned.
	DefaultMailbox = "INBOX"

	// DefaultTimeout bounds each IMAP command.
	DefaultTimeout = 60 * time.Second

	// MaxAttachmentSize matches the Gmail adapter's cap.
	MaxAttachmentSize = 25 * 1024 * 1024
)

// Config holds the connection settings.
type Config struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"-"`
	Mailbox  string        `yaml:"mailbox"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Mailbox == "" {
		c.Mailbox = DefaultMailbox
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate checks that credentials are present.
func (c Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return errors.New("imap username and password are required (YAHOO_EMAIL, YAHOO_PASSWORD)")
	}
	return nil
}

// Source is an IMAP-backed mailbox.
type Source struct {
	cfg     Config
	dial    func(addr string) (*client.Client, error)
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// New creates a Source. No connection is made until the first Fetch.
func New(cfg Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid imap address %q: %w", cfg.Addr, err)
	}
	return &Source{
		cfg: cfg,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
		},
		metrics: metrics,
		logger:  logging.WithService(logger, instrumentation.ServiceIMAP),
	}, nil
}

// session dials, logs in and selects the mailbox read-only, then runs fn.
// Cancelling ctx terminates the connection.
func (s *Source) session(ctx context.Context, operation string, fn func(c *client.Client, status *imap.MailboxStatus) error) (err error) {
	ctx, span := instrumentation.StartMailSpan(ctx, instrumentation.ServiceIMAP, operation)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		s.metrics.RecordMailOperation(ctx, instrumentation.ServiceIMAP, operation, status, time.Since(start))
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := s.dial(s.cfg.Addr)
	if err != nil {
		return retry.Transient(fmt.Errorf("failed to connect to %s: %w", s.cfg.Addr, err))
	}
	c.Timeout = s.cfg.Timeout

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Terminate()
		case <-stop:
		}
	}()
	defer func() {
		if lerr := c.Logout(); lerr != nil && ctx.Err() == nil {
			s.logger.Debug("imap logout failed", logging.Err(lerr))
		}
	}()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return fmt.Errorf("imap login failed for %s: %w", logging.AnonymizeEmail(s.cfg.Username), err)
	}

	status, err := c.Select(s.cfg.Mailbox, true)
	if err != nil {
		return s.wrap(ctx, fmt.Errorf("failed to select %s: %w", s.cfg.Mailbox, err))
	}

	return s.wrap(ctx, fn(c, status))
}

// wrap reports context cancellation as such and connection-level failures as
// transient.
func (s *Source) wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, client.ErrNotLoggedIn) {
		return retry.Transient(err)
	}
	return err
}

// Fetch returns unseen messages received at or after since, oldest first.
func (s *Source) Fetch(ctx context.Context, since time.Time) ([]mailbox.Message, error) {
	var msgs []mailbox.Message
	err := s.session(ctx, instrumentation.OperationFetch, func(c *client.Client, status *imap.MailboxStatus) error {
		uids, err := c.UidSearch(searchCriteria(since))
		if err != nil {
			return fmt.Errorf("uid search failed: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}

		headers, err := fetchHeaders(c, uids)
		if err != nil {
			return err
		}

		for _, h := range headers {
			if h.InternalDate.Before(since) {
				continue
			}
			msg, err := s.buildMessage(c, status.UidValidity, h)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

// searchCriteria matches unseen messages. IMAP SINCE has day granularity, so
// callers filter on the internal date afterwards.
func searchCriteria(since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !since.IsZero() {
		criteria.Since = since
	}
	return criteria
}

func fetchHeaders(c *client.Client, uids []uint32) ([]*imap.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchBodyStructure}
	return collect(c, seqset, items)
}

func (s *Source) buildMessage(c *client.Client, uidValidity uint32, h *imap.Message) (mailbox.Message, error) {
	msg := mailbox.Message{
		ID:         messageID(h.Envelope, uidValidity, h.Uid),
		ReceivedAt: h.InternalDate.UTC(),
	}
	if h.Envelope != nil {
		msg.Sender = formatSender(h.Envelope.From)
		msg.Subject = h.Envelope.Subject
	}

	if text, ok := findText(h.BodyStructure); ok {
		body, err := fetchSection(c, h.Uid, text.section())
		if err != nil {
			return mailbox.Message{}, err
		}
		decoded, err := decodePart(body, text.Encoding)
		if err != nil {
			s.logger.Warn("undecodable body part", logging.KeyMessage, msg.ID, logging.Err(err))
			decoded = body
		}
		msg.Body = string(decoded)
	}

	for _, a := range findAttachments(h.BodyStructure) {
		msg.AttachmentRefs = append(msg.AttachmentRefs, AttachmentRef{
			UIDValidity: uidValidity,
			UID:         h.Uid,
			Path:        a.Path,
			Filename:    a.Filename,
		}.String())
	}
	return msg, nil
}

func fetchSection(c *client.Client, uid uint32, section *imap.BodySectionName) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	msgs, err := collect(c, seqset, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message uid %d vanished", uid)
	}
	lit := msgs[0].GetBody(section)
	if lit == nil {
		return nil, fmt.Errorf("server returned no body for uid %d", uid)
	}
	data, err := io.ReadAll(io.LimitReader(lit, MaxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of uid %d: %w", uid, err)
	}
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("body part of uid %d exceeds maximum size %d", uid, MaxAttachmentSize)
	}
	return data, nil
}

// collect runs a UID FETCH and gathers the streamed results.
func collect(c *client.Client, seqset *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var out []*imap.Message
	for m := range ch {
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch failed: %w", err)
	}
	return out, nil
}
