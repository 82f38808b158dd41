package mrf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fedimod/mrf/activity"
)

// Posts rejected activities to a Slack channel, through an "incoming webhook".
type SlackNotifier struct {
	SlackWebhookURL string
	// defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) SendReject(ctx context.Context, act activity.Object, rej *RejectError) error {
	err := n.sendSlackMsg(ctx, slackRejectBody(act, rej))
	status := "ok"
	if err != nil {
		status = "error"
	}
	notificationsSent.WithLabelValues("slack", status).Inc()
	return err
}

// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackRejectBody(act activity.Object, rej *RejectError) string {
	msg := "⚠️ MRF Rejected Activity ⚠️\n"
	msg += fmt.Sprintf("Policy `%s`: %s\n", rej.Policy, rej.Reason)
	if t := act.Type(); t != "" {
		msg += fmt.Sprintf("Type: `%s`\n", t)
	}
	if actor, ok := act.String("actor"); ok {
		msg += fmt.Sprintf("Actor: <%s>\n", actor)
	}
	if id := act.ID(); id != "" {
		msg += fmt.Sprintf("`%s`\n", id)
	}
	return msg
}
