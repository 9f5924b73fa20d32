// Package telegram runs the monitoring bot that reports pipeline status.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/pipeline"
)

const recentArticlesLimit = 5

// Config controls the monitoring bot.
type Config struct {
	Token          string
	AllowedUserIDs []int64
	AllowedChatIDs []int64
}

// api is the slice of tgbotapi.BotAPI the bot uses, split out for tests.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot answers status commands from allow-listed Telegram users and chats.
type Bot struct {
	api      api
	cfg      Config
	jobs     pipeline.JobStore
	articles pipeline.ArticleStore
	logger   *zap.Logger
}

// New creates a Bot from a live Telegram connection.
func New(cfg Config, jobs pipeline.JobStore, articles pipeline.ArticleStore, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token not provided")
	}
	client, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return newWithAPI(client, cfg, jobs, articles, logger), nil
}

func newWithAPI(client api, cfg Config, jobs pipeline.JobStore, articles pipeline.ArticleStore, logger *zap.Logger) *Bot {
	return &Bot{
		api:      client,
		cfg:      cfg,
		jobs:     jobs,
		articles: articles,
		logger:   logger,
	}
}

// Run polls for updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram bot stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Broadcast sends a message to every allow-listed chat.
func (b *Bot) Broadcast(text string) {
	for _, chatID := range b.cfg.AllowedChatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("broadcast failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if !b.authorized(update) {
		b.logger.Warn("unauthorized bot command",
			zap.Int64("user_id", userID(update)),
			zap.Int64("chat_id", update.Message.Chat.ID),
			zap.String("command", update.Message.Command()))
		return
	}

	var text string
	switch update.Message.Command() {
	case "start":
		text = "👋 <b>Syndicator Monitor</b>\n\nUse /help to see available commands."
	case "help":
		text = "<b>Available Commands</b>\n\n" +
			"/status - Current pipeline status\n" +
			"/stats - Storage and publish totals\n" +
			"/recent - Recently stored articles\n" +
			"/help - Show this help message"
	case "status":
		text = b.statusText(ctx)
	case "stats":
		text = b.statsText(ctx)
	case "recent":
		text = b.recentText(ctx)
	default:
		text = "Unknown command. Use /help."
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send reply failed", zap.Error(err))
	}
}

// authorized denies everything when no allow lists are configured, and
// otherwise admits a matching user ID or chat ID.
func (b *Bot) authorized(update tgbotapi.Update) bool {
	if len(b.cfg.AllowedUserIDs) == 0 && len(b.cfg.AllowedChatIDs) == 0 {
		return false
	}
	uid := userID(update)
	for _, allowed := range b.cfg.AllowedUserIDs {
		if uid != 0 && uid == allowed {
			return true
		}
	}
	if update.Message == nil || update.Message.Chat == nil {
		return false
	}
	for _, allowed := range b.cfg.AllowedChatIDs {
		if update.Message.Chat.ID == allowed {
			return true
		}
	}
	return false
}

func (b *Bot) statusText(ctx context.Context) string {
	snap, err := b.jobs.Snapshot(ctx)
	if err != nil {
		b.logger.Error("status snapshot failed", zap.Error(err))
		return "🚨 Failed to read pipeline status."
	}

	emoji := "✅"
	if snap.JobsFailed > 0 {
		emoji = "⚠️"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>Pipeline Status</b>\n\n", emoji)
	fmt.Fprintf(&sb, "<b>Jobs running:</b> %d\n", snap.JobsRunning)
	fmt.Fprintf(&sb, "<b>Jobs succeeded:</b> %d\n", snap.JobsSucceeded)
	fmt.Fprintf(&sb, "<b>Jobs failed:</b> %d\n", snap.JobsFailed)
	fmt.Fprintf(&sb, "<b>Articles stored:</b> %d\n", snap.ArticlesStored)
	fmt.Fprintf(&sb, "<b>Articles published:</b> %d\n", snap.ArticlesPublished)
	if !snap.LastScrapeAt.IsZero() {
		fmt.Fprintf(&sb, "<b>Last scrape:</b> %s\n", snap.LastScrapeAt.Format("2006-01-02 15:04:05 MST"))
	}
	return sb.String()
}

func (b *Bot) statsText(ctx context.Context) string {
	stored, published, err := b.articles.CountArticles(ctx)
	if err != nil {
		b.logger.Error("article counts lookup failed", zap.Error(err))
		return "🚨 Failed to read article stats."
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Article Stats</b>\n\n")
	fmt.Fprintf(&sb, "<b>Stored:</b> %d\n", stored)
	fmt.Fprintf(&sb, "<b>Published:</b> %d\n", published)
	if stored > 0 {
		fmt.Fprintf(&sb, "<b>Publish rate:</b> %.0f%%\n", float64(published)/float64(stored)*100)
	}
	return sb.String()
}

func (b *Bot) recentText(ctx context.Context) string {
	articles, err := b.articles.ListRecent(ctx, recentArticlesLimit)
	if err != nil {
		b.logger.Error("recent articles lookup failed", zap.Error(err))
		return "🚨 Failed to read recent articles."
	}
	if len(articles) == 0 {
		return "No articles stored yet."
	}

	var sb strings.Builder
	sb.WriteString("<b>Recent Articles</b>\n\n")
	for _, a := range articles {
		fmt.Fprintf(&sb, "• <a href=%q>%s</a> [%s]\n", a.URL, a.Article.Title, a.PublishState)
	}
	return sb.String()
}

func userID(update tgbotapi.Update) int64 {
	if update.Message == nil || update.Message.From == nil {
		return 0
	}
	return update.Message.From.ID
}
