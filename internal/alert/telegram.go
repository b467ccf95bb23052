package alert

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Telegram sends notifications to a Telegram chat via the bot API.
// Delivery is best-effort and asynchronous so a slow or unreachable
// Telegram endpoint never stalls a sync run.
type Telegram struct {
	botID      string
	chatID     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewTelegram creates a Telegram notifier for the given bot and chat.
func NewTelegram(botID, chatID string, log zerolog.Logger) *Telegram {
	return &Telegram{
		botID:   botID,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("component", "telegram").Logger(),
	}
}

// Notify sends the message to the configured chat. Failures are logged
// and dropped.
func (t *Telegram) Notify(severity Severity, message string) {
	go t.send(severity, message)
}

func (t *Telegram) send(severity Severity, message string) {
	text := fmt.Sprintf("[%s] %s", strings.ToUpper(string(severity)), message)

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		t.log.Error().Err(err).Msg("Failed to encode notification")
		return
	}

	url := t.baseURL + "/bot" + t.botID + "/sendMessage"
	resp, err := t.httpClient.Post(url, "application/json", strings.NewReader(string(payload)))
	if err != nil {
		t.log.Error().Err(err).Str("severity", string(severity)).Msg("Failed to deliver notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.Error().
			Int("status", resp.StatusCode).
			Str("severity", string(severity)).
			Msg("Telegram rejected notification")
	}
}
