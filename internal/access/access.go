// Package access derives menus and permissions from store membership.
package access

import (
	"context"
	"errors"
	"fmt"

	"tg_loyalty_bot/internal/chat"
)

type userDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type adminDirectory interface {
	IsAdmin(ctx context.Context, id string) (bool, error)
}

// Policy answers membership questions against the store on every call. Nothing
// is cached, so admin changes apply on the next navigation.
type Policy struct {
	users  userDirectory
	admins adminDirectory
}

// NewPolicy constructs a Policy.
func NewPolicy(users userDirectory, admins adminDirectory) *Policy {
	return &Policy{users: users, admins: admins}
}

// IsRegistered reports whether the user has a User record.
func (p *Policy) IsRegistered(ctx context.Context, userID string) (bool, error) {
	if p == nil || p.users == nil {
		return false, errors.New("access policy is not initialized")
	}
	ok, err := p.users.Exists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return ok, nil
}

// IsAdmin reports whether the user is in the admin set.
func (p *Policy) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if p == nil || p.admins == nil {
		return false, errors.New("access policy is not initialized")
	}
	ok, err := p.admins.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return ok, nil
}

// MainMenu builds the main keyboard for a user. Promotions and discount are
// always listed. Registered users get their profile and, when admin, the
// admin panel. Unregistered users get the start command instead.
func (p *Policy) MainMenu(ctx context.Context, userID string) (*chat.Keyboard, error) {
	registered, err := p.IsRegistered(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows := [][]string{
		{chat.LabelPromotions},
		{chat.LabelMyDiscount},
	}

	if !registered {
		rows = append(rows, []string{chat.LabelStart})
		return &chat.Keyboard{Rows: rows}, nil
	}

	rows = append(rows, []string{chat.LabelMyProfile})

	admin, err := p.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if admin {
		rows = append(rows, []string{chat.LabelAdminPanel})
	}

	return &chat.Keyboard{Rows: rows}, nil
}

// AdminPanel is the keyboard of the admin panel.
func AdminPanel() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{chat.LabelAddPromotion},
		{chat.LabelManageClients},
		{chat.LabelBack},
	}}
}

// ClientsMenu is the keyboard of the client management submenu.
func ClientsMenu() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{chat.LabelListClients},
		{chat.LabelFindClient},
		{chat.LabelGrantDiscount},
		{chat.LabelBack},
	}}
}
