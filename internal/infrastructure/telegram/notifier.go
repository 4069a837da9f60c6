package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram rejects messages above 4096 characters.
const maxMessageRunes = 4096

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty baseURL uses
// the public Bot API.
func NewNotifier(botToken, chatID, baseURL string) *Notifier {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// PublishDigest posts an HTML message to Telegram, splitting long digests
// on line boundaries.
func (n *Notifier) PublishDigest(ctx context.Context, message string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	for _, part := range split(message, maxMessageRunes) {
		if err := n.send(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram error: %w", &domain.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))})
	}

	return nil
}

func split(message string, limit int) []string {
	if len([]rune(message)) <= limit {
		return []string{message}
	}

	var parts []string
	var current strings.Builder
	size := 0
	for _, line := range strings.SplitAfter(message, "\n") {
		lineRunes := []rune(line)
		if size > 0 && size+len(lineRunes) > limit {
			parts = append(parts, current.String())
			current.Reset()
			size = 0
		}
		for len(lineRunes) > limit {
			parts = append(parts, string(lineRunes[:limit]))
			lineRunes = lineRunes[limit:]
		}
		current.WriteString(string(lineRunes))
		size += len(lineRunes)
	}
	if size > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
