// Package identity adapts signup, login and logout to a PocketBase-style
// identity backend. The gateway treats user records as opaque: credentials
// in, session token out, nothing cached locally.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"polling-gateway/models"
)

var (
	ErrDuplicateIdentity  = errors.New("identity already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports malformed signup/login input rejected by the
// backend.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "identity backend rejected input: " + e.Message
}

// BackendError means the identity backend was unreachable or answered with
// a server-side failure.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("identity backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Signup creates a user record. extra fields are forwarded untouched; the
// backend owns the record schema.
func (c *Client) Signup(ctx context.Context, identifier, secret string, extra map[string]string) (models.SessionRecord, error) {
	payload := map[string]interface{}{
		"email":           identifier,
		"password":        secret,
		"passwordConfirm": secret,
	}
	for k, v := range extra {
		payload[k] = v
	}

	status, body, err := c.post(ctx, "/api/collections/users/records", payload)
	if err != nil {
		return models.SessionRecord{}, &BackendError{Op: "signup", Err: err}
	}

	switch {
	case status == http.StatusOK:
		var record struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &record); err != nil {
			return models.SessionRecord{}, &BackendError{Op: "signup", Err: err}
		}
		return models.SessionRecord{ID: record.ID, Identifier: record.Email}, nil
	case status == http.StatusBadRequest:
		if isDuplicate(body) {
			return models.SessionRecord{}, fmt.Errorf("signup %q: %w", identifier, ErrDuplicateIdentity)
		}
		return models.SessionRecord{}, &ValidationError{Message: backendMessage(body)}
	default:
		return models.SessionRecord{}, &BackendError{Op: "signup", Err: fmt.Errorf("unexpected status %d", status)}
	}
}

// Login checks credentials and returns the session token issued by the
// backend.
func (c *Client) Login(ctx context.Context, identifier, secret string) (models.SessionToken, error) {
	payload := map[string]interface{}{
		"identity": identifier,
		"password": secret,
	}

	status, body, err := c.post(ctx, "/api/collections/users/auth-with-password", payload)
	if err != nil {
		return models.SessionToken{}, &BackendError{Op: "login", Err: err}
	}

	switch status {
	case http.StatusOK:
		var auth struct {
			Token  string `json:"token"`
			Record struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"record"`
		}
		if err := json.Unmarshal(body, &auth); err != nil {
			return models.SessionToken{}, &BackendError{Op: "login", Err: err}
		}
		return models.SessionToken{
			Token:  auth.Token,
			Record: models.SessionRecord{ID: auth.Record.ID, Identifier: auth.Record.Email},
		}, nil
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return models.SessionToken{}, fmt.Errorf("login %q: %w", identifier, ErrInvalidCredentials)
	default:
		return models.SessionToken{}, &BackendError{Op: "login", Err: fmt.Errorf("unexpected status %d", status)}
	}
}

// Logout acknowledges discarding the presented token. Tokens are stateless
// and the gateway caches none, so there is nothing process-wide to clear;
// the scope of a logout is exactly the token the caller sent, and an absent
// token simply means there is nothing to discard.
func (c *Client) Logout(ctx context.Context, token string) error {
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// isDuplicate checks the backend's field-level error codes for a uniqueness
// violation.
func isDuplicate(body []byte) bool {
	var failure struct {
		Data map[string]struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &failure); err != nil {
		return false
	}
	for _, field := range failure.Data {
		if field.Code == "validation_not_unique" {
			return true
		}
	}
	return false
}

func backendMessage(body []byte) string {
	var failure struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &failure); err != nil || failure.Message == "" {
		return "invalid input"
	}
	return failure.Message
}
