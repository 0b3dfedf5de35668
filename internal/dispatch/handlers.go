package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"tg_loyalty_bot/internal/access"
	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/domain"
)

// maxListLength keeps client listings under Telegram's message limit.
const maxListLength = 4000

const (
	textNotRegistered = "❌ You are not registered. Press /start"
	textNoPromotions  = "There are no active promotions right now."
	textPromotions    = "🔥 Current promotions:\n\n"
	textPromotionItem = "🎁 <b>%s</b>\n%s\n\n"
	textDiscount      = "✅ Your current discount: %d%%"
	textProfile       = "👤 Your profile:\n\n📌 Name: %s\n📱 Phone: %s\n🎁 Discount: %d%%\n📅 Registered: %s"
	textClientsMenu   = "👥 Client management:"
	textNoClients     = "❌ No registered clients."
	textClients       = "📋 Clients:\n\n"
	textClientItem    = "👤 %s (ID: %s) - %s - Discount: %d%%\n"
)

func (d *Dispatcher) start(ctx context.Context, msg chat.Message) error {
	registered, err := d.policy.IsRegistered(ctx, msg.SenderID)
	if err != nil {
		return err
	}
	if registered {
		return d.flows.WelcomeBack(ctx, msg.SenderID)
	}
	return d.flows.StartRegistration(ctx, msg.SenderID)
}

func (d *Dispatcher) showPromotions(ctx context.Context, msg chat.Message) error {
	promotions, err := d.promotions.List(ctx)
	if err != nil {
		return err
	}
	if len(promotions) == 0 {
		return d.reply(ctx, msg.SenderID, textNoPromotions, nil)
	}

	var b strings.Builder
	b.WriteString(textPromotions)
	for _, p := range promotions {
		fmt.Fprintf(&b, textPromotionItem, html.EscapeString(p.Title), html.EscapeString(p.Description))
	}
	return d.reply(ctx, msg.SenderID, strings.TrimRight(b.String(), "\n"), nil)
}

func (d *Dispatcher) showDiscount(ctx context.Context, msg chat.Message) error {
	user, err := d.users.Get(ctx, msg.SenderID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return d.reply(ctx, msg.SenderID, textNotRegistered, nil)
	}
	if err != nil {
		return err
	}
	return d.reply(ctx, msg.SenderID, fmt.Sprintf(textDiscount, user.Discount), nil)
}

func (d *Dispatcher) showProfile(ctx context.Context, msg chat.Message) error {
	user, err := d.users.Get(ctx, msg.SenderID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return d.reply(ctx, msg.SenderID, textNotRegistered, nil)
	}
	if err != nil {
		return err
	}
	return d.reply(ctx, msg.SenderID, fmt.Sprintf(textProfile,
		html.EscapeString(user.Name),
		html.EscapeString(user.Phone),
		user.Discount,
		html.EscapeString(user.RegistrationDate),
	), nil)
}

func (d *Dispatcher) back(ctx context.Context, msg chat.Message) error {
	return d.flows.SendMainMenu(ctx, msg.SenderID)
}

func (d *Dispatcher) adminPanel(ctx context.Context, msg chat.Message) error {
	return d.flows.SendAdminPanel(ctx, msg.SenderID)
}

func (d *Dispatcher) addPromotion(ctx context.Context, msg chat.Message) error {
	return d.flows.StartAddPromotion(ctx, msg.SenderID)
}

func (d *Dispatcher) manageClients(ctx context.Context, msg chat.Message) error {
	return d.reply(ctx, msg.SenderID, textClientsMenu, access.ClientsMenu())
}

func (d *Dispatcher) listClients(ctx context.Context, msg chat.Message) error {
	users, err := d.users.List(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return d.reply(ctx, msg.SenderID, textNoClients, nil)
	}

	var b strings.Builder
	b.WriteString(textClients)
	length := utf8.RuneCountInString(textClients)
	for _, u := range users {
		line := fmt.Sprintf(textClientItem,
			html.EscapeString(u.Name),
			html.EscapeString(u.ID),
			html.EscapeString(u.Phone),
			u.Discount,
		)
		n := utf8.RuneCountInString(line)
		if length+n > maxListLength {
			break
		}
		b.WriteString(line)
		length += n
	}
	return d.reply(ctx, msg.SenderID, strings.TrimRight(b.String(), "\n"), nil)
}

func (d *Dispatcher) findClient(ctx context.Context, msg chat.Message) error {
	return d.flows.StartFindClient(ctx, msg.SenderID)
}

func (d *Dispatcher) grantDiscount(ctx context.Context, msg chat.Message) error {
	return d.flows.StartSetDiscount(ctx, msg.SenderID)
}

func (d *Dispatcher) reply(ctx context.Context, userID, text string, keyboard *chat.Keyboard) error {
	if err := d.sender.Send(ctx, chat.Reply{UserID: userID, Text: text, Keyboard: keyboard}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
