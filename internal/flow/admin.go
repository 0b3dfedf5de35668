package flow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/session"
)

func (c *Controller) promotionTitle(ctx context.Context, state *session.State, msg chat.Message) error {
	if strings.TrimSpace(msg.Text) == "" {
		return c.reject(ctx, msg.SenderID, state.Step, textAskTitleAgain)
	}

	next := state.With(session.StepAddPromotionAwaitingDesc, session.KeyTitle, msg.Text)
	return c.advance(ctx, next, textAskDescription, nil)
}

func (c *Controller) promotionDescription(ctx context.Context, state *session.State, msg chat.Message) error {
	_, err := c.promotions.Create(ctx, domain.Promotion{
		Title:       state.Value(session.KeyTitle),
		Description: msg.Text,
	})
	if err != nil {
		return c.fail(ctx, msg.SenderID, FlowAddPromotion, err)
	}

	if err := c.clear(ctx, msg.SenderID); err != nil {
		return err
	}
	c.completed(ctx, FlowAddPromotion)

	if err := c.send(ctx, msg.SenderID, textPromotionAdded, nil); err != nil {
		return err
	}
	return c.SendAdminPanel(ctx, msg.SenderID)
}

// findClient is terminal: the state is cleared whatever the outcome.
func (c *Controller) findClient(ctx context.Context, msg chat.Message) error {
	if err := c.clear(ctx, msg.SenderID); err != nil {
		return err
	}

	found, err := c.users.FindByPhone(ctx, strings.TrimSpace(msg.Text))
	if err != nil {
		return c.fail(ctx, msg.SenderID, FlowFindClient, err)
	}
	c.completed(ctx, FlowFindClient)

	if len(found) == 0 {
		return c.send(ctx, msg.SenderID, textClientNotFound, nil)
	}

	var b strings.Builder
	b.WriteString(textSearchResults)
	for _, record := range found {
		fmt.Fprintf(&b, searchResultFormat,
			html.EscapeString(record.Name),
			html.EscapeString(record.ID),
			html.EscapeString(record.Phone),
			record.Discount,
		)
	}

	return c.send(ctx, msg.SenderID, strings.TrimRight(b.String(), "\n"), nil)
}

// setDiscount is terminal: malformed input is not retried.
func (c *Controller) setDiscount(ctx context.Context, msg chat.Message) error {
	if err := c.clear(ctx, msg.SenderID); err != nil {
		return err
	}

	userID, discount, err := domain.ParseDiscountCommand(msg.Text)
	if err != nil {
		text := textInvalidDiscount
		if errors.Is(err, domain.ErrDiscountOutOfRange) {
			text = textDiscountRange
		}
		return c.reject(ctx, msg.SenderID, session.StepSetDiscountAwaitingInput, text)
	}

	user, err := c.users.SetDiscount(ctx, userID, discount)
	if errors.Is(err, domain.ErrUserNotFound) {
		return c.send(ctx, msg.SenderID, textUserNotFound, nil)
	}
	if err != nil {
		return c.fail(ctx, msg.SenderID, FlowSetDiscount, err)
	}
	c.completed(ctx, FlowSetDiscount)

	return c.send(ctx, msg.SenderID, fmt.Sprintf(textDiscountSet, "<b>"+html.EscapeString(user.Name)+"</b>", user.Discount), nil)
}
