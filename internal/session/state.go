// Package session keeps the transient per-user conversation state that
// carries a multi-step flow from one inbound message to the next.
package session

import (
	"context"
	"maps"
)

// Step names the position of a user inside a flow. The zero value is idle.
type Step string

// Steps of every flow.
const (
	StepIdle                      Step = ""
	StepRegistrationAwaitingName  Step = "registration:awaiting-name"
	StepRegistrationAwaitingPhone Step = "registration:awaiting-phone"
	StepAddPromotionAwaitingTitle Step = "admin:add-promotion:awaiting-title"
	StepAddPromotionAwaitingDesc  Step = "admin:add-promotion:awaiting-description"
	StepFindUserAwaitingPhone     Step = "admin:find-user:awaiting-phone"
	StepSetDiscountAwaitingInput  Step = "admin:set-discount:awaiting-input"
)

// Scratch keys collected across steps.
const (
	KeyName  = "name"
	KeyTitle = "title"
)

// State is the in-progress conversation of one user.
type State struct {
	UserID string            `json:"user_id"`
	Step   Step              `json:"step"`
	Data   map[string]string `json:"data,omitempty"`
}

// Store holds at most one State per user. Get returns nil when the user is
// idle.
type Store interface {
	Get(ctx context.Context, userID string) (*State, error)
	Set(ctx context.Context, state *State) error
	Clear(ctx context.Context, userID string) error
}

// Value returns a scratch field, or "" when absent.
func (s *State) Value(key string) string {
	if s == nil || s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// With returns a copy of s advanced to step with key set to value. An empty
// key only changes the step.
func (s *State) With(step Step, key, value string) *State {
	next := s.clone()
	next.Step = step
	if key != "" {
		if next.Data == nil {
			next.Data = make(map[string]string, 1)
		}
		next.Data[key] = value
	}
	return next
}

func (s *State) clone() *State {
	if s == nil {
		return &State{}
	}
	c := *s
	if s.Data != nil {
		c.Data = maps.Clone(s.Data)
	}
	return &c
}
