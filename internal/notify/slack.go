package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ingeweb/contactws/internal/model"
)

// SlackNotifier posts a Block Kit summary of a run to an incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Channel    string // optional override of the webhook's channel
	SiteName   string
	client     *http.Client
}

func NewSlackNotifier(webhookURL, channel, siteName string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Channel:    channel,
		SiteName:   siteName,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send is a no-op without a webhook URL.
func (s *SlackNotifier) Send(ctx context.Context, stats *model.SyncStats) error {
	if s.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(s.payload(stats))
	if err != nil {
		return fmt.Errorf("notify: marshalling slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sending slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: non-200 status from slack: %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackNotifier) payload(st *model.SyncStats) map[string]any {
	if st == nil {
		st = &model.SyncStats{}
	}

	icon := "🟢"
	switch SeverityOf(st.ExecutionTime) {
	case SeveritySlow:
		icon = "🔴"
	case SeverityModerate:
		icon = "🟡"
	}

	lastSync := "never"
	if st.HasRun() {
		lastSync = st.LastSyncTime.Format("2006-01-02 15:04")
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%s SARH synchronization: %s", icon, s.SiteName),
			},
		},
		{
			"type": "context",
			"elements": []map[string]any{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Last sync:* %s | *Duration:* %.2fs", lastSync, st.ExecutionTime.Seconds()),
				},
			},
		},
		{"type": "divider"},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Users in SARH:*\n%d", st.TotalAPIUsers)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Without account:*\n%d", st.TotalMissing)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Active:*\n%d", st.ActiveUsers)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Suspended:*\n%d", st.SuspendedUsers)},
			},
		},
	}

	if st.TotalUnprocessed > 0 {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("⚠️ *%d users not processed*\nThe run hit its time budget and account matching was skipped.", st.TotalUnprocessed),
			},
		})
	}

	payload := map[string]any{"blocks": blocks}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	return payload
}
