package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxagent/internal/google"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/retry"
)

const me = "me"

// pageSize is the number of message ids requested per list call.
const pageSize = 100

// Client wraps the Gmail Users service.
type Client struct {
	svc     *gmail.UsersService
	account string
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewForAccount creates a client authorized with the stored token of the
// configured account.
func NewForAccount(ctx context.Context, auth google.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*Client, error) {
	hc, err := auth.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found for account %s: %w", auth.Account, err)
	}
	account := auth.Account
	if account == "" {
		account = google.DefaultAccount
	}
	return New(ctx, account, metrics, logger, option.WithHTTPClient(hc))
}

// New creates a client from explicit API options.
func New(ctx context.Context, account string, metrics *instrumentation.Metrics, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:     svc.Users,
		account: account,
		metrics: metrics,
		logger:  logging.WithService(logger, instrumentation.ServiceGmail),
		now:     time.Now,
	}, nil
}

// Account returns the account name this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// observe runs one API call inside a client span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartMailSpan(ctx, instrumentation.ServiceGmail, operation,
		attribute.String(instrumentation.SpanAttrAccount, c.account))
	defer span.End()

	start := time.Now()
	err := classify(fn(ctx))

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordMailOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

// classify marks errors worth another attempt as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError {
			return retry.Transient(err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return retry.Transient(err)
	}
	return err
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
