// Package telegram is the chat transport: a long-polling Bot API client
// that dispatches user commands and delivers notification messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

const (
	apiBase     = "https://api.telegram.org"
	pollTimeout = 25 * time.Second
	retryDelay  = 5 * time.Second
)

// RuleService is the slice of the condition processor the bot needs.
type RuleService interface {
	CreateCondition(ctx context.Context, chatID int64, expr string) (model.Notification, error)
	ListNotifications(chatID int64) ([]model.Notification, error)
	RemoveNotification(chatID, id int64) error
}

// Bot is a Telegram Bot API client. It implements model.Notifier for
// outbound notification delivery.
type Bot struct {
	baseURL string
	client  *http.Client
	rules   RuleService
	offset  int64
}

// New creates a bot for the given API token.
func New(token string, rules RuleService) *Bot {
	return &Bot{
		baseURL: fmt.Sprintf("%s/bot%s", apiBase, token),
		client: &http.Client{
			Timeout: pollTimeout + 10*time.Second,
		},
		rules: rules,
	}
}

// SetRules binds the rule service. Used when the service itself needs the
// bot as its notifier; must be called before Run.
func (b *Bot) SetRules(rules RuleService) { b.rules = rules }

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run long-polls getUpdates and dispatches incoming commands until the
// context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log.Printf("[telegram] polling for updates")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[telegram] getUpdates: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, u.Message.Chat.ID, u.Message.Text)
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	url := fmt.Sprintf("%s/getUpdates?offset=%d&timeout=%d", b.baseURL, b.offset, int(pollTimeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	var payload updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("telegram: api returned ok=false")
	}
	return payload.Result, nil
}

func (b *Bot) handleMessage(ctx context.Context, chatID int64, text string) {
	reply := b.dispatch(ctx, chatID, text)
	if reply == "" {
		return
	}
	if err := b.Send(ctx, chatID, reply); err != nil {
		log.Printf("[telegram] chat %d: reply failed: %v", chatID, err)
	}
}

// Send delivers a plain-text message to a chat.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/sendMessage", b.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}
