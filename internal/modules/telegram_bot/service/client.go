package service

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signal_tracker/pkg/metrics"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Config struct {
	Token             string
	Endpoint          string // формат tgbot.APIEndpoint, пусто - api.telegram.org
	MaxAttempts       int
	BaseDelay         time.Duration
	DefaultRetryAfter time.Duration
	Timeout           time.Duration
}

// Telegram: разовые уведомления в канал/чат. Без токена только пишет в лог.
type Telegram struct {
	bot *tgbot.BotAPI
	cfg Config
	log *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewTelegram(cfg Config, log *zap.Logger) *Telegram {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbot.APIEndpoint
	}

	t := &Telegram{
		cfg:   cfg,
		log:   log.Named("telegram"),
		sleep: sleepCtx,
	}
	if cfg.Token == "" {
		t.log.Warn("telegram token is empty, notifications go to log only")
		return t
	}

	// getMe не зовём: старт сервиса не ходит в Telegram
	t.bot = &tgbot.BotAPI{
		Token:  cfg.Token,
		Buffer: 100,
		Client: &http.Client{Timeout: cfg.Timeout},
	}
	t.bot.SetAPIEndpoint(cfg.Endpoint)
	return t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send отправляет Markdown-сообщение. Никогда не паникует и не возвращает ошибку:
// false: все попытки исчерпаны. 429 ждёт retry_after и тоже тратит попытку.
func (t *Telegram) Send(ctx context.Context, chatID string, text string) bool {
	if t.bot == nil {
		t.log.Info("notification (log only)", zap.String("chat_id", chatID), zap.String("text", text))
		metrics.NotificationsTotal.WithLabelValues("logged").Inc()
		return true
	}

	msg := newMessage(chatID, text)
	msg.ParseMode = tgbot.ModeMarkdown
	msg.DisableWebPagePreview = true

	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		_, err := t.bot.Send(msg)
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("sent").Inc()
			return true
		}

		wait := time.Duration(attempt) * t.cfg.BaseDelay
		var apiErr *tgbot.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			wait = t.cfg.DefaultRetryAfter
			if apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			t.log.Warn("rate limited", zap.Duration("retry_after", wait), zap.Int("attempt", attempt))
		} else {
			t.log.Error("send failed", zap.Int("attempt", attempt), zap.Error(err))
			if attempt == t.cfg.MaxAttempts {
				break
			}
		}

		if err := t.sleep(ctx, wait); err != nil {
			break
		}
	}

	t.log.Error("all sending attempts failed", zap.String("chat_id", chatID))
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	return false
}

// newMessage: числовой chat_id - чат, иначе @username канала.
func newMessage(chatID string, text string) tgbot.MessageConfig {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbot.NewMessage(id, text)
	}
	return tgbot.NewMessageToChannel(chatID, text)
}
