// Package google manages the OAuth2 token the agent uses to read and send
// Gmail on behalf of one or more named accounts.
//
// Tokens are stored as JSON files under a cache directory, one file per
// account. Refreshed tokens are written back so a long-running daemon keeps
// working across access-token expiry.
package google
