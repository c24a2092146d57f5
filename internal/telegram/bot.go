package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"go-openclaw-autoapply/internal/models"
)

// ErrNoChat means neither the user nor the bot has a chat to deliver to.
var ErrNoChat = errors.New("no telegram chat configured")

// ChatResolver maps a user to their Telegram chat.
type ChatResolver interface {
	TelegramChatID(ctx context.Context, userID string) (int64, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api     sender
	chats   ChatResolver
	chatID  int64
	limiter *rate.Limiter
}

// NewBot connects to the Bot API. chatID is the operator chat used when a
// user has none of their own; chats may be nil.
func NewBot(token string, chatID int64, chats ChatResolver) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newBot(api, chatID, chats), nil
}

func newBot(api sender, chatID int64, chats ChatResolver) *Bot {
	return &Bot{
		api:    api,
		chats:  chats,
		chatID: chatID,
		// Telegram allows about one message per second per chat
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

func (b *Bot) escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
		")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
		"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
		"}", "\\}", ".", "\\.", "!", "\\!",
	)
	return replacer.Replace(text)
}

func (b *Bot) resolveChat(ctx context.Context, userID string) (int64, error) {
	if b.chats != nil && userID != "" {
		id, err := b.chats.TelegramChatID(ctx, userID)
		if err == nil && id != 0 {
			return id, nil
		}
	}
	if b.chatID == 0 {
		return 0, ErrNoChat
	}
	return b.chatID, nil
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.Send(msg)
	return err
}

// NotifyApplied tells the user an application went out (or is queued for
// their review).
func (b *Bot) NotifyApplied(ctx context.Context, userID string, job models.JobCandidate, reviewMode bool) error {
	chatID, err := b.resolveChat(ctx, userID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	if reviewMode {
		sb.WriteString("📝 *Application queued for review*\n")
	} else {
		sb.WriteString("✅ *Application submitted*\n")
	}
	fmt.Fprintf(&sb, "💼 %s\n", b.escapeMarkdown(job.Title))
	fmt.Fprintf(&sb, "🏢 *%s*\n", b.escapeMarkdown(job.Company))

	loc := job.Location
	if loc == "" {
		loc = "N/A"
	}
	fmt.Fprintf(&sb, "📍 %s\n", b.escapeMarkdown(loc))
	fmt.Fprintf(&sb, "🤖 Fit Score: %s/100\n", b.escapeMarkdown(fmt.Sprintf("%.0f", job.FitScore)))
	fmt.Fprintf(&sb, "🔖 Source: %s\n", b.escapeMarkdown(string(job.Platform())))

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = "MarkdownV2"
	if job.ApplyURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🔗 View Job", job.ApplyURL),
			),
		)
	}

	if err := b.send(ctx, msg); err != nil {
		log.Printf("⚠️ Telegram notify failed for job %s: %v", job.JobID, err)
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (b *Bot) SendError(ctx context.Context, err error) error {
	if b.chatID == 0 {
		return ErrNoChat
	}
	return b.send(ctx, tgbotapi.NewMessage(b.chatID, fmt.Sprintf("❌ Error: %v", err)))
}

func (b *Bot) SendStatus(ctx context.Context, message string) error {
	if b.chatID == 0 {
		return ErrNoChat
	}
	return b.send(ctx, tgbotapi.NewMessage(b.chatID, "ℹ️ "+message))
}
