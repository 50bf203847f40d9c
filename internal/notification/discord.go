// Package notification posts run outcomes to Discord webhooks. Failures
// here are logged by callers and never fail the run.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/geoguardian/landcover-monitor-poc/internal/config"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
)

// Notifier sends to the configured webhooks; unset webhooks are no-ops.
type Notifier struct {
	cfg config.NotificationConfig
}

func NewNotifier(cfg config.NotificationConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

func (n *Notifier) SendError(errorMessage string) error {
	if n.cfg.ErrorWebhookURL == "" {
		return nil
	}
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "🚨 Acquisition failed",
				Description: errorMessage,
				Color:       colorRed,
			},
		},
	}
	return post(n.cfg.ErrorWebhookURL, message)
}

func (n *Notifier) SendSuccess(successMessage string) error {
	if n.cfg.SuccessWebhookURL == "" {
		return nil
	}
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "✅ Acquisition finished",
				Description: successMessage,
				Color:       colorGreen,
			},
		},
	}
	return post(n.cfg.SuccessWebhookURL, message)
}

func post(webhookURL string, message DiscordMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
