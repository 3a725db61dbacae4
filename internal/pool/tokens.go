package pool

import (
	"context"
	"fmt"
	"time"
)

// tokenSkew is the expiry safety margin from spec §3: valid iff
// now < expiresAt - 60s.
const tokenSkew = 60 * time.Second

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

func (t *cachedToken) valid() bool {
	return t != nil && t.accessToken != "" && time.Now().Before(t.expiresAt.Add(-tokenSkew))
}

// GetAccessToken returns a valid cached token for email, or performs an
// OAuth refresh and caches the result. Concurrent refreshes for the same
// email coalesce into a single network call via singleflight (spec §4.4,
// §5, §9).
func (p *Pool) GetAccessToken(ctx context.Context, email string) (string, error) {
	p.mu.RLock()
	cached := p.tokenCache[email]
	p.mu.RUnlock()

	if cached.valid() {
		return cached.accessToken, nil
	}

	acc := p.GetByEmail(email)
	if acc == nil {
		return "", fmt.Errorf("account not found: %s", email)
	}
	if acc.OAuthRefreshToken == "" {
		return "", fmt.Errorf("account %s has no refresh token", email)
	}

	result, err, _ := p.inflight.Do(email, func() (any, error) {
		accessToken, ttl, err := p.refresher.Refresh(ctx, acc.OAuthRefreshToken)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		if p.tokenCache == nil {
			p.tokenCache = make(map[string]*cachedToken)
		}
		p.tokenCache[email] = &cachedToken{accessToken: accessToken, expiresAt: time.Now().Add(ttl)}
		p.mu.Unlock()

		return accessToken, nil
	})
	if err != nil {
		p.MarkUnauthorized(email)
		return "", fmt.Errorf("refresh token for %s: %w", email, err)
	}

	return result.(string), nil
}
