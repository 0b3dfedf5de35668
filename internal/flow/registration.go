package flow

import (
	"context"
	"errors"
	"strings"

	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/session"
)

func (c *Controller) registrationName(ctx context.Context, state *session.State, msg chat.Message) error {
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		return c.reject(ctx, msg.SenderID, state.Step, textAskNameAgain)
	}

	next := state.With(session.StepRegistrationAwaitingPhone, session.KeyName, name)
	return c.advance(ctx, next, textAskPhone, chat.ContactKeyboard(textSharePhone))
}

func (c *Controller) registrationPhone(ctx context.Context, state *session.State, msg chat.Message) error {
	phone := msg.Text
	if msg.Contact != nil {
		phone = msg.Contact.PhoneNumber
	}

	if !domain.ValidPhone(phone) {
		return c.reject(ctx, msg.SenderID, state.Step, textInvalidPhone)
	}

	_, err := c.registrar.Register(ctx, msg.SenderID, state.Value(session.KeyName), phone, msg.Timestamp)
	if errors.Is(err, domain.ErrUserExists) {
		if err := c.clear(ctx, msg.SenderID); err != nil {
			return err
		}
		return c.WelcomeBack(ctx, msg.SenderID)
	}
	if err != nil {
		return c.fail(ctx, msg.SenderID, FlowRegistration, err)
	}

	if err := c.clear(ctx, msg.SenderID); err != nil {
		return err
	}
	c.completed(ctx, FlowRegistration)

	if err := c.send(ctx, msg.SenderID, textRegistered, chat.RemoveKeyboard()); err != nil {
		return err
	}
	return c.SendMainMenu(ctx, msg.SenderID)
}
