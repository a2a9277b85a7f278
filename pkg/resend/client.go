package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a minimal Resend transactional email client. Only the /emails
// endpoint is implemented; that is all the scheduler needs.
type Client struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, from string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		from:       from,
		baseURL:    "https://api.resend.com",
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// SendEmail posts one message and returns the provider message id. Any
// non-2xx status is an error; the response body is included for diagnosis.
func (c *Client) SendEmail(ctx context.Context, to, subject, html string, headers map[string]string) (string, error) {
	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
		Headers: headers,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("resend: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("resend: decode response: %w", err)
	}
	return out.ID, nil
}
