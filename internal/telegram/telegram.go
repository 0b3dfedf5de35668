// Package telegram hosts the Telegram client: long polling, update conversion
// and reply delivery.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/config"
	"tg_loyalty_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Dispatcher consumes converted inbound messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg chat.Message) error
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies. It is the
// chat.Sender used by the conversation core.
type Client struct {
	bot        botAPI
	logger     *logrus.Entry
	dispatcher Dispatcher
}

// NewClient initializes the Telegram bot with long polling. Updates are
// dropped until Route installs a dispatcher.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	client.bot = tgBot

	return client, nil
}

// Route installs the dispatcher. It must be called before Start.
func (c *Client) Route(d Dispatcher) {
	c.dispatcher = d
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// Send delivers reply as an HTML message to the private chat of reply.UserID.
func (c *Client) Send(ctx context.Context, reply chat.Reply) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	chatID, err := strconv.ParseInt(reply.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", reply.UserID, err)
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      reply.Text,
		ParseMode: models.ParseModeHTML,
	}
	if markup := replyMarkup(reply.Keyboard); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		c.logger.WithField("event", "telegram_update_skipped").Debug("ignoring update without a sender")
		return
	}

	msg := toChatMessage(update.Message)
	ctx, entry := logging.ForUpdate(ctx, c.logger, msg.SenderID)

	defer func() {
		if r := recover(); r != nil {
			entry.WithFields(logging.Fields{
				"event": "telegram_panic",
				"panic": fmt.Sprint(r),
			}).Error("recovered from panic while handling update")
		}
	}()

	entry.WithFields(logging.Fields{
		"event":       "telegram_update",
		"action":      msg.Action.String(),
		"has_contact": msg.Contact != nil,
	}).Debug("telegram update received")

	if c.dispatcher == nil {
		entry.WithField("event", "telegram_unrouted").Warn("no dispatcher installed, dropping update")
		return
	}

	if err := c.dispatcher.Dispatch(ctx, msg); err != nil {
		entry.WithField("event", "telegram_dispatch_error").WithError(err).Error("failed to handle update")
	}
}

func toChatMessage(m *models.Message) chat.Message {
	text := strings.TrimSpace(m.Text)
	msg := chat.Message{
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		Text:      text,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
		Action:    chat.ParseAction(text),
	}
	if m.Date == 0 {
		msg.Timestamp = time.Now().UTC()
	}
	if m.Contact != nil && m.Contact.PhoneNumber != "" {
		msg.Contact = &chat.Contact{PhoneNumber: m.Contact.PhoneNumber}
	}
	return msg
}

func replyMarkup(k *chat.Keyboard) models.ReplyMarkup {
	switch {
	case k == nil:
		return nil
	case k.Remove:
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	case k.RequestContact != "":
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: k.RequestContact, RequestContact: true}},
			},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	case len(k.Rows) == 0:
		return nil
	}

	rows := make([][]models.KeyboardButton, 0, len(k.Rows))
	for _, row := range k.Rows {
		buttons := make([]models.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, models.KeyboardButton{Text: label})
		}
		rows = append(rows, buttons)
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
