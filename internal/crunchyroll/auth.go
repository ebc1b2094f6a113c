package crunchyroll

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const tokenPath = "/auth/v1/token"

// Login exchanges user credentials for a refresh-capable token pair. Empty
// credentials are not checked locally; the API rejects them.
func (c *Client) Login(ctx context.Context, username, password string) (AuthToken, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("grant_type", "password")
	form.Set("scope", "offline_access")

	payload, err := c.exchangeToken(ctx, "login", form)
	if err != nil {
		return AuthToken{}, err
	}
	if strings.TrimSpace(payload.RefreshToken) == "" {
		return AuthToken{}, &AuthError{Kind: AuthMalformedResponse, Op: "login", Err: errors.New("response is missing refresh_token")}
	}
	if payload.ExpiresIn == nil {
		return AuthToken{}, &AuthError{Kind: AuthMalformedResponse, Op: "login", Err: errors.New("response is missing expires_in")}
	}

	lifetime := time.Duration(*payload.ExpiresIn) * time.Second

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = AuthToken{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		AccountID:    payload.AccountID,
		Country:      payload.Country,
		IssuedAt:     c.now(),
		Lifetime:     lifetime,
	}
	c.lifecycle.RecordIssuance(lifetime)
	c.authenticated = true

	c.logger.Info("crunchyroll login succeeded",
		slog.String("event_type", "auth_login"),
		slog.String("account_id", payload.AccountID),
		slog.Duration("token_lifetime", lifetime),
		slog.Duration("valid_for", c.lifecycle.Remaining()),
	)
	return c.token, nil
}

// Refresh exchanges the refresh token for a new access token regardless of the
// current expiry. The refresh token itself is kept.
func (c *Client) Refresh(ctx context.Context) (AuthToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return AuthToken{}, ErrNotAuthenticated
	}
	if err := c.refreshLocked(ctx); err != nil {
		return AuthToken{}, err
	}
	return c.token, nil
}

// ensureFreshToken returns an access token usable for the next request,
// refreshing it first when the lifecycle says it is about to expire.
func (c *Client) ensureFreshToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if !c.authenticated {
		c.mu.RUnlock()
		return "", ErrNotAuthenticated
	}
	if c.lifecycle.IsValid() {
		token := c.token.AccessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited for the write lock.
	if c.lifecycle.IsValid() {
		return c.token.AccessToken, nil
	}

	c.logger.Debug("access token expired, refreshing", slog.String("event_type", "auth_refresh"))
	if err := c.refreshLocked(ctx); err != nil {
		if c.refreshPolicy == RefreshPermissive {
			c.logger.Warn("token refresh failed; continuing with stale token",
				slog.String("event_type", "auth_refresh_failed"),
				slog.String("error_hint", "later requests may be rejected with 401"),
				slog.Any("error", err),
			)
			return c.token.AccessToken, nil
		}
		return "", err
	}
	return c.token.AccessToken, nil
}

// refreshLocked must be called with c.mu held for writing.
func (c *Client) refreshLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("refresh_token", c.token.RefreshToken)
	form.Set("grant_type", "refresh_token")

	payload, err := c.exchangeToken(ctx, "refresh", form)
	if err != nil {
		return err
	}

	lifetime := c.lifecycle.Lifetime()
	if payload.ExpiresIn != nil {
		lifetime = time.Duration(*payload.ExpiresIn) * time.Second
	}
	c.token.AccessToken = payload.AccessToken
	c.token.IssuedAt = c.now()
	c.token.Lifetime = lifetime
	c.lifecycle.RecordIssuance(lifetime)
	c.logger.Debug("access token refreshed",
		slog.String("event_type", "auth_refreshed"),
		slog.Duration("valid_for", c.lifecycle.Remaining()),
	)
	return nil
}

func (c *Client) exchangeToken(ctx context.Context, op string, form url.Values) (tokenPayload, error) {
	endpoint, err := c.endpoint(tokenPath, nil)
	if err != nil {
		return tokenPayload{}, &AuthError{Kind: AuthTransportFailure, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenPayload{}, &AuthError{Kind: AuthTransportFailure, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Basic "+c.identity.BasicAuth)
	req.Header.Set("User-Agent", c.identity.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, latency, err := c.send(req)
	if err != nil {
		return tokenPayload{}, &AuthError{Kind: AuthTransportFailure, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readErrorBody(resp)
		c.logger.Debug("token endpoint rejected request",
			slog.String("operation", op),
			slog.Int("status", resp.StatusCode),
			slog.Duration("latency", latency),
		)
		return tokenPayload{}, &AuthError{Kind: AuthRejectedCredentials, Op: op, Status: resp.StatusCode, Body: body}
	}

	reader, err := bodyReader(resp)
	if err != nil {
		return tokenPayload{}, &AuthError{Kind: AuthMalformedResponse, Op: op, Err: err}
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return tokenPayload{}, &AuthError{Kind: AuthTransportFailure, Op: op, Err: err}
	}

	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return tokenPayload{}, &AuthError{Kind: AuthMalformedResponse, Op: op, Err: err}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenPayload{}, &AuthError{Kind: AuthMalformedResponse, Op: op, Err: errors.New("response is missing access_token")}
	}
	if payload.ExpiresIn != nil && *payload.ExpiresIn < 0 {
		return tokenPayload{}, &AuthError{Kind: AuthMalformedResponse, Op: op, Err: errors.New("response has negative expires_in")}
	}
	return payload, nil
}
