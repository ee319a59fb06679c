package google

import (
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// persistingTokenSource writes the token back to disk whenever the wrapped
// source hands out a different access token.
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh Google token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && s.last.AccessToken == tok.AccessToken {
		return tok, nil
	}
	// Google omits the refresh token on refresh responses.
	if tok.RefreshToken == "" && s.last != nil {
		cp := *tok
		cp.RefreshToken = s.last.RefreshToken
		tok = &cp
	}
	if err := writeToken(s.path, tok); err != nil {
		return nil, err
	}
	s.last = tok
	return tok, nil
}
