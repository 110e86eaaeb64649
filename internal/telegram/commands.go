package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Qolorerr/Athena/internal/model"
)

// dispatch routes one incoming message and returns the reply text, or ""
// when nothing should be sent back.
func (b *Bot) dispatch(ctx context.Context, chatID int64, text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	command, args := splitCommand(text)
	switch command {
	case "/start":
		return greetingText
	case "/help":
		return b.handleHelp(args)
	case "/add":
		return b.handleAdd(ctx, chatID, args)
	case "/remove":
		return b.handleRemove(chatID, args)
	case "/list":
		return b.handleList(chatID)
	default:
		return fmt.Sprintf("I don't know command %s", command)
	}
}

// splitCommand separates "/add foo bar" into "/add" and "foo bar", stripping
// a "@botname" suffix from the command.
func splitCommand(text string) (command, args string) {
	command, args, _ = strings.Cut(text, " ")
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return command, strings.TrimSpace(args)
}

func (b *Bot) handleHelp(args string) string {
	if args == "" {
		return helpText
	}
	name := strings.TrimPrefix(args, "/")
	if text, ok := commandHelp[name]; ok {
		return text
	}
	return fmt.Sprintf("I don't know command %s", args)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, expr string) string {
	if expr == "" {
		return commandHelp["add"]
	}

	_, err := b.rules.CreateCondition(ctx, chatID, expr)
	switch {
	case err == nil:
		return "Rule saved!"
	case errors.Is(err, model.ErrWrongCondition):
		return "Wrong syntax"
	case errors.Is(err, model.ErrNonexistentAggregator):
		return fmt.Sprintf("There is no such aggregator: %v", err)
	default:
		log.Printf("[telegram] chat %d: /add failed: %v", chatID, err)
		return ""
	}
}

func (b *Bot) handleRemove(chatID int64, args string) string {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return "Wrong notification id"
	}

	switch err := b.rules.RemoveNotification(chatID, id); {
	case err == nil:
		return "Notification removed!"
	case errors.Is(err, model.ErrNonexistentNotification):
		return "Wrong notification id"
	default:
		log.Printf("[telegram] chat %d: /remove failed: %v", chatID, err)
		return ""
	}
}

func (b *Bot) handleList(chatID int64) string {
	notifs, err := b.rules.ListNotifications(chatID)
	if err != nil {
		log.Printf("[telegram] chat %d: /list failed: %v", chatID, err)
		return ""
	}
	if len(notifs) == 0 {
		return "You have no any notifications"
	}

	lines := make([]string, len(notifs))
	for i, n := range notifs {
		lines[i] = fmt.Sprintf("%d   %s", n.ID, n.Origin)
	}
	return strings.Join(lines, "\n")
}
