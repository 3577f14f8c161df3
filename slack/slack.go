package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nutriagent/nutrients"
)

var ErrNoWebhook = errors.New("slack webhook URL is not configured")

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts messages through a Slack incoming webhook.
type Client struct {
	webhookURL string
	httpClient doer
}

func NewClient(webhookURL string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	if c.webhookURL == "" {
		return ErrNoWebhook
	}

	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// FormatNutrients renders grouped nutrients as Slack mrkdwn, one bullet per nutrient in
// the order they were grouped.
func FormatNutrients(term string, grouped *nutrients.Grouped) string {
	if grouped == nil || grouped.Len() == 0 {
		return fmt.Sprintf("No nutrient data found for %q.", term)
	}

	// A Caser carries state, so each call gets its own.
	title := cases.Title(language.English)

	var b strings.Builder
	fmt.Fprintf(&b, "*Nutrients for %q*", term)
	for g := grouped.Oldest(); g != nil; g = g.Next() {
		fields := make([]string, 0, g.Value.Len())
		for m := g.Value.Oldest(); m != nil; m = m.Next() {
			fields = append(fields, fmt.Sprintf("%s %v", m.Key, m.Value))
		}
		fmt.Fprintf(&b, "\n• *%s*: %s", title.String(strings.ReplaceAll(g.Key, "-", " ")), strings.Join(fields, ", "))
	}
	return b.String()
}
