package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/groupmod/modbot/modflow/report"
	"github.com/groupmod/modbot/util"
)

// Mirrors registered reports to a Slack channel through an "incoming webhook", which must already be configured in the workspace.
type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          util.RobustHTTPClient(),
	}
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) SendReport(ctx context.Context, r *report.Report) error {
	return n.post(ctx, SlackWebhookBody{Text: slackText(r)})
}

func slackText(r *report.Report) string {
	return ":rotating_light: *Moderation report* :rotating_light:\n" + PlainSummary(r)
}

func (n *SlackNotifier) post(ctx context.Context, body SlackWebhookBody) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	// a healthy webhook answers with the literal body "ok"
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || string(reply) != "ok" {
		return fmt.Errorf("slack webhook rejected report: status=%d body=%q", resp.StatusCode, reply)
	}
	return nil
}
