// Package remote implements the HTTP client for the progress server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/mrlokans/readalong/internal/entities"
)

const (
	defaultTimeout    = 30 * time.Second
	maxRetries        = 3
	initialRetryDelay = 1 * time.Second
)

// Client interfaces with the progress server API. It implements the
// sync engine's remote store.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryDelay time.Duration
}

// NewClient creates a progress server client. The token is the device
// token issued at registration.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		retryDelay: initialRetryDelay,
	}
}

// progressPayload is the wire form of a saved position.
type progressPayload struct {
	Locator   entities.Locator `json:"locator"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source,omitempty"`
	Location  string           `json:"location,omitempty"`
}

type conflictPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// Put uploads a book's position. A 409 from the server means another
// device pushed a newer position; the returned ConflictError carries
// the server's timestamp.
func (c *Client) Put(ctx context.Context, p entities.SavedProgress) error {
	body, err := json.Marshal(progressPayload{
		Locator:   p.Locator,
		Timestamp: p.Timestamp,
		Source:    p.Source,
		Location:  p.Location,
	})
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	return retry.Do(
		func() error { return c.doPut(ctx, p.BookID, body) },
		retry.Context(ctx),
		retry.Attempts(maxRetries),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableError),
	)
}

func (c *Client) doPut(ctx context.Context, bookID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.progressURL(bookID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		var conflict conflictPayload
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			return fmt.Errorf("failed to decode conflict response: %w", err)
		}
		return &ConflictError{ServerTimestamp: conflict.Timestamp}
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode}
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}

// Get fetches a book's position from the server. Returns (nil, nil)
// when the server has never seen the book.
func (c *Client) Get(ctx context.Context, bookID string) (*entities.SavedProgress, error) {
	var progress *entities.SavedProgress
	err := retry.Do(
		func() error {
			var err error
			progress, err = c.doGet(ctx, bookID)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(maxRetries),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableError),
	)
	return progress, err
}

func (c *Client) doGet(ctx context.Context, bookID string) (*entities.SavedProgress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.progressURL(bookID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode >= 500:
		return nil, &ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload progressPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &entities.SavedProgress{
		BookID:    bookID,
		Locator:   payload.Locator,
		Timestamp: payload.Timestamp,
		Source:    payload.Source,
		Location:  payload.Location,
	}, nil
}

// ValidateToken checks the device token against the auth endpoint.
func (c *Client) ValidateToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) progressURL(bookID string) string {
	return c.baseURL + "/api/v1/progress/" + url.PathEscape(bookID)
}

// Only transient conditions are worth retrying; auth failures and
// conflicts are definitive.
func isRetryableError(err error) bool {
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
