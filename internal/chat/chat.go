// Package chat is the transport-neutral boundary between the Telegram client
// and the conversation core.
package chat

import (
	"context"
	"time"
)

// Contact is a structured phone number shared by the user.
type Contact struct {
	PhoneNumber string
}

// Message is one inbound event from a user.
type Message struct {
	SenderID  string
	Text      string
	Contact   *Contact
	Timestamp time.Time
	Action    Action
}

// Keyboard is a reply keyboard. RequestContact, when set, renders a single
// contact-sharing button with that label. Remove hides any keyboard shown
// earlier.
type Keyboard struct {
	Rows           [][]string
	RequestContact string
	Remove         bool
}

// Reply is an outbound message. Text is HTML; user-supplied parts must be
// escaped by the caller.
type Reply struct {
	UserID   string
	Text     string
	Keyboard *Keyboard
}

// Sender delivers replies to users.
type Sender interface {
	Send(ctx context.Context, reply Reply) error
}

// RemoveKeyboard hides the current reply keyboard.
func RemoveKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// ContactKeyboard offers a single contact-sharing button.
func ContactKeyboard(label string) *Keyboard {
	return &Keyboard{RequestContact: label}
}
