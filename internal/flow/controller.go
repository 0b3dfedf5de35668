// Package flow implements the per-user conversation state machine that drives
// registration, promotion authoring, client lookup and discount assignment.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/access"
	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/logging"
	"tg_loyalty_bot/internal/metrics"
	"tg_loyalty_bot/internal/session"
)

// Flow names used in logs and metrics.
const (
	FlowRegistration = "registration"
	FlowAddPromotion = "add_promotion"
	FlowFindClient   = "find_client"
	FlowSetDiscount  = "set_discount"
)

type userStore interface {
	SetDiscount(ctx context.Context, id string, discount int) (domain.User, error)
	FindByPhone(ctx context.Context, phone string) ([]domain.UserRecord, error)
}

type registrar interface {
	Register(ctx context.Context, id, name, phone string, registeredAt time.Time) (domain.User, error)
}

type promotionStore interface {
	Create(ctx context.Context, promotion domain.Promotion) (domain.PromotionRecord, error)
}

type menuPolicy interface {
	MainMenu(ctx context.Context, userID string) (*chat.Keyboard, error)
}

// Deps are the collaborators of a Controller. Metrics and Logger are optional.
type Deps struct {
	Sessions   session.Store
	Users      userStore
	Registrar  registrar
	Promotions promotionStore
	Menus      menuPolicy
	Sender     chat.Sender
	Metrics    *metrics.Metrics
	Logger     *logrus.Entry
}

// Controller advances conversations one inbound message at a time. The only
// thing carried between messages is the session.State of the sender.
type Controller struct {
	sessions   session.Store
	users      userStore
	registrar  registrar
	promotions promotionStore
	menus      menuPolicy
	sender     chat.Sender
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// New constructs a Controller.
func New(deps Deps) (*Controller, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Users == nil:
		return nil, errors.New("user store is required")
	case deps.Registrar == nil:
		return nil, errors.New("registrar is required")
	case deps.Promotions == nil:
		return nil, errors.New("promotion store is required")
	case deps.Menus == nil:
		return nil, errors.New("menu policy is required")
	case deps.Sender == nil:
		return nil, errors.New("sender is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Logger()
	}

	return &Controller{
		sessions:   deps.Sessions,
		users:      deps.Users,
		registrar:  deps.Registrar,
		promotions: deps.Promotions,
		menus:      deps.Menus,
		sender:     deps.Sender,
		metrics:    deps.Metrics,
		logger:     logger,
	}, nil
}

// Handle processes msg as the next input of the flow recorded in state.
// Validation problems are answered to the user and never returned. The
// returned error only reports session or delivery failures.
func (c *Controller) Handle(ctx context.Context, state *session.State, msg chat.Message) error {
	if c == nil {
		return errors.New("flow controller is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if state == nil {
		return errors.New("state is required")
	}

	switch state.Step {
	case session.StepRegistrationAwaitingName:
		return c.registrationName(ctx, state, msg)
	case session.StepRegistrationAwaitingPhone:
		return c.registrationPhone(ctx, state, msg)
	case session.StepAddPromotionAwaitingTitle:
		return c.promotionTitle(ctx, state, msg)
	case session.StepAddPromotionAwaitingDesc:
		return c.promotionDescription(ctx, state, msg)
	case session.StepFindUserAwaitingPhone:
		return c.findClient(ctx, msg)
	case session.StepSetDiscountAwaitingInput:
		return c.setDiscount(ctx, msg)
	default:
		c.log(ctx).WithFields(logging.Fields{
			"event": "flow_unknown_step",
			"step":  state.Step,
		}).Warn("dropping unknown conversation step")
		return c.clear(ctx, msg.SenderID)
	}
}

// StartRegistration asks an unregistered user for their name.
func (c *Controller) StartRegistration(ctx context.Context, userID string) error {
	return c.start(ctx, userID, session.StepRegistrationAwaitingName, textAskName, chat.RemoveKeyboard())
}

// StartAddPromotion asks an admin for the promotion title.
func (c *Controller) StartAddPromotion(ctx context.Context, userID string) error {
	return c.start(ctx, userID, session.StepAddPromotionAwaitingTitle, textAskTitle, nil)
}

// StartFindClient asks an admin for the phone number to look up.
func (c *Controller) StartFindClient(ctx context.Context, userID string) error {
	return c.start(ctx, userID, session.StepFindUserAwaitingPhone, textAskPhoneLookup, nil)
}

// StartSetDiscount asks an admin for "<user id> <discount>".
func (c *Controller) StartSetDiscount(ctx context.Context, userID string) error {
	return c.start(ctx, userID, session.StepSetDiscountAwaitingInput, textAskDiscount, nil)
}

// SendMainMenu shows the main menu computed for userID.
func (c *Controller) SendMainMenu(ctx context.Context, userID string) error {
	keyboard, err := c.menus.MainMenu(ctx, userID)
	if err != nil {
		return fmt.Errorf("build main menu: %w", err)
	}
	return c.send(ctx, userID, textMainMenu, keyboard)
}

// SendAdminPanel shows the admin panel keyboard.
func (c *Controller) SendAdminPanel(ctx context.Context, userID string) error {
	return c.send(ctx, userID, textAdminPanel, access.AdminPanel())
}

// WelcomeBack greets a registered user and shows the main menu.
func (c *Controller) WelcomeBack(ctx context.Context, userID string) error {
	if err := c.send(ctx, userID, textWelcomeBack, nil); err != nil {
		return err
	}
	return c.SendMainMenu(ctx, userID)
}

func (c *Controller) start(ctx context.Context, userID string, step session.Step, prompt string, keyboard *chat.Keyboard) error {
	if c == nil {
		return errors.New("flow controller is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := c.sessions.Set(ctx, &session.State{UserID: userID, Step: step}); err != nil {
		return fmt.Errorf("start %s: %w", step, err)
	}

	c.log(ctx).WithFields(logging.Fields{
		"event": "flow_started",
		"step":  step,
	}).Debug("conversation flow started")

	return c.send(ctx, userID, prompt, keyboard)
}

func (c *Controller) advance(ctx context.Context, next *session.State, prompt string, keyboard *chat.Keyboard) error {
	if err := c.sessions.Set(ctx, next); err != nil {
		return fmt.Errorf("advance to %s: %w", next.Step, err)
	}
	return c.send(ctx, next.UserID, prompt, keyboard)
}

// reject answers invalid input without touching the state.
func (c *Controller) reject(ctx context.Context, userID string, step session.Step, text string) error {
	c.metrics.ValidationFailed(string(step))
	c.log(ctx).WithFields(logging.Fields{
		"event": "flow_input_rejected",
		"step":  step,
	}).Debug("rejected flow input")
	return c.send(ctx, userID, text, nil)
}

// fail handles a persistence error: log it, reset the conversation and send a
// generic apology.
func (c *Controller) fail(ctx context.Context, userID, flow string, cause error) error {
	c.log(ctx).WithFields(logging.Fields{
		"event": "flow_failed",
		"flow":  flow,
	}).WithError(cause).Error("conversation flow failed")

	if err := c.clear(ctx, userID); err != nil {
		return err
	}
	return c.send(ctx, userID, textSomethingWrong, nil)
}

func (c *Controller) completed(ctx context.Context, flow string) {
	c.metrics.FlowCompleted(flow)
	c.log(ctx).WithFields(logging.Fields{
		"event": "flow_completed",
		"flow":  flow,
	}).Info("conversation flow completed")
}

func (c *Controller) clear(ctx context.Context, userID string) error {
	if err := c.sessions.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

func (c *Controller) send(ctx context.Context, userID, text string, keyboard *chat.Keyboard) error {
	if err := c.sender.Send(ctx, chat.Reply{UserID: userID, Text: text, Keyboard: keyboard}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (c *Controller) log(ctx context.Context) *logrus.Entry {
	return logging.FromContext(ctx, c.logger)
}
