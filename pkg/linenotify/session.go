package linenotify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by Session.Token when nothing is cached.
var ErrNoToken = errors.New("linenotify: no_cached_token")

// Session decorates a Client with a cached access token. An explicit token
// passed to a call always wins over the cached one. The cache is guarded by
// a mutex; concurrent exchanges still race semantically and the last one wins.
type Session struct {
	client *Client

	mutex       sync.RWMutex
	accessToken string
}

var _ oauth2.TokenSource = (*Session)(nil)

// NewSession wraps client, seeding the cache with initialToken (may be empty).
func NewSession(client *Client, initialToken string) *Session {
	return &Session{client: client, accessToken: initialToken}
}

// NewSessionFromTokenSource seeds the cache from an oauth2.TokenSource.
func NewSessionFromTokenSource(client *Client, tokenSource oauth2.TokenSource) (*Session, error) {
	token, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return NewSession(client, token.AccessToken), nil
}

// Client returns the wrapped client.
func (session *Session) Client() *Client {
	return session.client
}

// AccessToken returns the cached token, or "".
func (session *Session) AccessToken() string {
	session.mutex.RLock()
	defer session.mutex.RUnlock()
	return session.accessToken
}

// Token implements oauth2.TokenSource over the cached token.
func (session *Session) Token() (*oauth2.Token, error) {
	accessToken := session.AccessToken()
	if accessToken == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}

// Forget drops the cached token, typically after a successful Revoke.
func (session *Session) Forget() {
	session.mutex.Lock()
	session.accessToken = ""
	session.mutex.Unlock()
}

// ExchangeToken delegates to Client.ExchangeToken and caches a non-empty token.
func (session *Session) ExchangeToken(ctx context.Context, code string, redirectURIOverride string) (TokenResult, error) {
	tokenResult, err := session.client.ExchangeToken(ctx, code, redirectURIOverride)
	if err != nil {
		return TokenResult{}, err
	}
	if tokenResult.AccessToken != "" {
		session.mutex.Lock()
		session.accessToken = tokenResult.AccessToken
		session.mutex.Unlock()
	}
	return tokenResult, nil
}

// SendNotification sends with explicitToken, or the cached token when it is empty.
func (session *Session) SendNotification(ctx context.Context, explicitToken string, message string, options *NotifyOptions) (NotifyResult, error) {
	return session.client.SendNotification(ctx, session.resolve(explicitToken), message, options)
}

// GetStatus queries with explicitToken, or the cached token when it is empty.
func (session *Session) GetStatus(ctx context.Context, explicitToken string) (StatusResult, error) {
	return session.client.GetStatus(ctx, session.resolve(explicitToken))
}

// Revoke revokes explicitToken, or the cached token when it is empty. The
// cache is left untouched; call Forget once the result is OK.
func (session *Session) Revoke(ctx context.Context, explicitToken string) (NotifyResult, error) {
	return session.client.Revoke(ctx, session.resolve(explicitToken))
}

func (session *Session) resolve(explicitToken string) string {
	if explicitToken != "" {
		return explicitToken
	}
	return session.AccessToken()
}
