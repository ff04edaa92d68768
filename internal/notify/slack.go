package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
)

// slackDetailLimit caps the failures listed in a Slack message.
const slackDetailLimit = 5

// Slack posts summaries to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	httpClient *http.Client
}

// NewSlack creates a Slack sender.
func NewSlack(settings config.SlackSettings) *Slack {
	return &Slack{
		webhookURL: settings.WebhookURL,
		channel:    settings.Channel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Slack) Name() string { return "slack" }

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Channel string       `json:"channel,omitempty"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks"`
}

// Send posts the summary.
func (s *Slack) Send(ctx context.Context, sum Summary, detailed bool) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	body, err := json.Marshal(slackMessage{
		Channel: s.channel,
		Text:    "Test Run Summary: " + sum.Title,
		Blocks:  slackBlocks(sum, detailed),
	})
	if err != nil {
		return fmt.Errorf("failed to encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

func slackBlocks(s Summary, detailed bool) []slackBlock {
	status := "✅ " + s.Status()
	if s.Failed > 0 {
		status = "❌ " + s.Status()
	}
	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: s.Title}},
		{Type: "section", Fields: []slackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("*Total Tests:*\n%d", s.Total)},
			{Type: "mrkdwn", Text: "*Status:*\n" + status},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Passed:*\n%d (%.1f%%)", s.Passed, s.PassRate())},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Failed:*\n%d", s.Failed)},
		}},
		{Type: "context", Elements: []slackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("Duration: %.2f seconds | Generated by SmartTest", s.DurationSeconds)},
		}},
	}
	if !detailed || len(s.Failures) == 0 {
		return blocks
	}

	blocks = append(blocks,
		slackBlock{Type: "divider"},
		slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*Failed Tests:*"}},
	)
	for i, f := range s.Failures {
		if i >= slackDetailLimit {
			break
		}
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*%s*\n%s", f.Name, f.Message),
		}})
	}
	shown := min(len(s.Failures), slackDetailLimit)
	if more := len(s.Failures) + s.Omitted - shown; more > 0 {
		blocks = append(blocks, slackBlock{Type: "context", Elements: []slackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("_...and %d more failures_", more)},
		}})
	}
	return blocks
}
