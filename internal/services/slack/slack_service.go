package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/costwatch/costwatch/internal/types"
)

// Accent color of every posted attachment.
const accentColor = "#fd8c1e"

type SlackService struct {
	httpClient *http.Client
}

func NewSlackService(httpClient *http.Client) *SlackService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SlackService{
		httpClient: httpClient,
	}
}

type webhookPayload struct {
	Color   string        `json:"color"`
	Pretext string        `json:"pretext"`
	Fields  []types.Field `json:"fields"`
}

// Notify posts one message to the webhook. A single attempt, no retry; the
// response body is drained and discarded.
func (s *SlackService) Notify(ctx context.Context, webhookURL string, message types.NotificationMessage) error {
	endpoint, err := resolveEndpoint(webhookURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotificationFailed, err)
	}

	body, err := json.Marshal(webhookPayload{
		Color:   accentColor,
		Pretext: message.Headline,
		Fields:  message.Fields,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotificationFailed, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotificationFailed, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotificationFailed, err)
	}
	defer response.Body.Close()

	io.Copy(io.Discard, response.Body)

	if response.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned status %d", types.ErrNotificationFailed, response.StatusCode)
	}

	return nil
}

// resolveEndpoint rebuilds the webhook URL with an explicit port: the URL's
// own port when present, otherwise 443 for https and 80 for anything else.
func resolveEndpoint(webhookURL string) (string, error) {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %v", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid webhook url: missing host")
	}

	port := parsed.Port()
	if port == "" {
		if parsed.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	return fmt.Sprintf("%s://%s:%s%s", parsed.Scheme, parsed.Hostname(), port, parsed.Path), nil
}
