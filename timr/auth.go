package timr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ohrner-it/task-timr/allocation"
)

// defaultTokenLifetime applies when the login response carries no
// valid_until.
const defaultTokenLifetime = 12 * time.Hour

// loginSource is an oauth2.TokenSource backed by POST /login. It is wrapped
// in oauth2.ReuseTokenSource, so Token is only called when the cached token
// is missing or expired.
type loginSource struct {
	http      *http.Client
	baseURL   string
	companyID string
	username  string
	password  string
	timeout   time.Duration

	mu     sync.Mutex
	userID string
}

var _ oauth2.TokenSource = (*loginSource)(nil)

func (s *loginSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	body, err := json.Marshal(loginRequest{Identifier: s.companyID, Login: s.username, Password: s.password})
	if err != nil {
		return nil, fmt.Errorf("encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &allocation.UpstreamError{Op: "POST /login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &allocation.UpstreamError{Op: "POST /login", StatusCode: resp.StatusCode, Message: readMessage(resp)}
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &allocation.UpstreamError{Op: "POST /login", Message: "decode response", Err: err}
	}
	if out.Token == "" {
		return nil, &allocation.UpstreamError{Op: "POST /login", Message: "authentication failed, no token received"}
	}

	s.mu.Lock()
	s.userID = out.User.ID
	s.mu.Unlock()

	return &oauth2.Token{
		AccessToken: out.Token,
		TokenType:   "Bearer",
		Expiry:      expiry(out.ValidUntil),
	}, nil
}

func (s *loginSource) currentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func expiry(validUntil string) time.Time {
	if validUntil != "" {
		if t, err := time.Parse(time.RFC3339, validUntil); err == nil {
			return t
		}
	}
	return time.Now().Add(defaultTokenLifetime)
}
