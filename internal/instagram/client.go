// Package instagram talks to the Instagram Graph API and receives its
// messaging webhooks.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// MaxTextRunes is the longest text the Send API accepts in one message.
const MaxTextRunes = 1000

// APIError is an error response from the Graph API.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsPermanent reports whether err is a Graph API rejection that retrying
// cannot fix, such as an invalid token or recipient.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}

// SendResult identifies a delivered message.
type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Client is a minimal Graph API client. Every call takes the tenant's own
// access token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "instagram_client")),
	}
}

// Username resolves the handle of an Instagram-scoped user id.
func (c *Client) Username(ctx context.Context, accessToken, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	query := url.Values{}
	query.Set("fields", "username")
	query.Set("access_token", accessToken)
	endpoint := c.baseURL + "/" + url.PathEscape(userID) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("get username: %w", err)
	}
	if out.Username == "" {
		return "", fmt.Errorf("get username: empty username for %s", userID)
	}
	return out.Username, nil
}

// SendText posts a text reply to the user.
func (c *Client) SendText(ctx context.Context, accessToken, recipientID, text string) (SendResult, error) {
	if strings.TrimSpace(recipientID) == "" {
		return SendResult{}, errors.New("recipient id is required")
	}
	if strings.TrimSpace(text) == "" {
		return SendResult{}, errors.New("message text is required")
	}
	payload := map[string]any{
		"recipient":      map[string]string{"id": recipientID},
		"messaging_type": "RESPONSE",
		"message":        map[string]string{"text": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, err
	}
	query := url.Values{}
	query.Set("access_token", accessToken)
	endpoint := c.baseURL + "/me/messages?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out SendResult
	if err := c.do(req, &out); err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr = envelope.Error
			apiErr.StatusCode = resp.StatusCode
		}
		c.logger.Warn("graph api error",
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int("code", apiErr.Code),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
