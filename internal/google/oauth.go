package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultAccount is used when no account name is configured.
const DefaultAccount = "default"

// DefaultRedirectURL is the loopback redirect registered for desktop clients.
// The operator copies the code parameter from the redirected URL.
const DefaultRedirectURL = "http://127.0.0.1"

// ErrNoToken is returned when no token has been saved for an account.
var ErrNoToken = errors.New("no Google OAuth token saved")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// Config holds the OAuth client credentials and where tokens are kept.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenDir     string `yaml:"token_dir"`
	Account      string `yaml:"account"`
}

// Validate checks the account name and that client credentials are present.
func (c Config) Validate() error {
	if err := validateAccountName(c.account()); err != nil {
		return err
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("google client id and secret are required (GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET)")
	}
	return nil
}

func (c Config) account() string {
	if c.Account == "" {
		return DefaultAccount
	}
	return c.Account
}

func (c Config) tokenDir() string {
	if c.TokenDir != "" {
		return c.TokenDir
	}
	return filepath.Join(userCacheDir(), "inboxagent")
}

func (c Config) oauthConfig() *oauth2.Config {
	redirect := c.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       DefaultOAuthScopes,
	}
}

func validateAccountName(account string) error {
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: use letters, digits, '.', '_' or '-'", account)
	}
	return nil
}

// TokenPath returns the token file for the configured account.
func (c Config) TokenPath() string {
	return filepath.Join(c.tokenDir(), "google-"+c.account()+".token")
}

// HasToken reports whether a token file exists for the configured account.
func (c Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// AuthURL returns the consent URL. Offline access is requested so a refresh
// token is issued.
func (c Config) AuthURL(state string) string {
	return c.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// SaveToken exchanges an authorization code and stores the resulting token.
func (c Config) SaveToken(ctx context.Context, code string) error {
	if err := validateAccountName(c.account()); err != nil {
		return err
	}
	tok, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return writeToken(c.TokenPath(), tok)
}

// TokenSource returns a refreshing token source for the stored token. Tokens
// obtained through refresh are persisted.
func (c Config) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if err := validateAccountName(c.account()); err != nil {
		return nil, err
	}
	path := c.TokenPath()
	tok, err := readToken(path)
	if err != nil {
		return nil, err
	}
	return &persistingTokenSource{
		base: c.oauthConfig().TokenSource(ctx, tok),
		path: path,
		last: tok,
	}, nil
}

// HTTPClient returns an HTTP client authorized with the stored token.
func (c Config) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := c.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s: run 'inboxagent auth'", ErrNoToken, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("invalid token file %s: no access or refresh token", path)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}
