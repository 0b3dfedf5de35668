// Package dispatch routes inbound messages either to the active conversation
// flow of the sender or to a top-level action handler.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/logging"
	"tg_loyalty_bot/internal/metrics"
	"tg_loyalty_bot/internal/session"
)

// Route labels that are not actions.
const (
	RouteFlow    = "flow"
	RouteDropped = "dropped"
)

type flowController interface {
	Handle(ctx context.Context, state *session.State, msg chat.Message) error
	StartRegistration(ctx context.Context, userID string) error
	StartAddPromotion(ctx context.Context, userID string) error
	StartFindClient(ctx context.Context, userID string) error
	StartSetDiscount(ctx context.Context, userID string) error
	SendMainMenu(ctx context.Context, userID string) error
	SendAdminPanel(ctx context.Context, userID string) error
	WelcomeBack(ctx context.Context, userID string) error
}

type accessPolicy interface {
	IsRegistered(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type userReader interface {
	Get(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context) ([]domain.UserRecord, error)
}

type promotionLister interface {
	List(ctx context.Context) ([]domain.PromotionRecord, error)
}

// Deps are the collaborators of a Dispatcher. Metrics and Logger are optional.
type Deps struct {
	Sessions   session.Store
	Flows      flowController
	Policy     accessPolicy
	Users      userReader
	Promotions promotionLister
	Sender     chat.Sender
	Metrics    *metrics.Metrics
	Logger     *logrus.Entry
}

type handlerFunc func(ctx context.Context, msg chat.Message) error

type route struct {
	adminOnly bool
	handle    handlerFunc
}

// Dispatcher owns the routing table. It holds no per-user data; everything
// per user lives in the session store.
type Dispatcher struct {
	sessions   session.Store
	flows      flowController
	policy     accessPolicy
	users      userReader
	promotions promotionLister
	sender     chat.Sender
	metrics    *metrics.Metrics
	logger     *logrus.Entry
	routes     map[chat.Action]route
}

// New constructs a Dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Flows == nil:
		return nil, errors.New("flow controller is required")
	case deps.Policy == nil:
		return nil, errors.New("access policy is required")
	case deps.Users == nil:
		return nil, errors.New("user reader is required")
	case deps.Promotions == nil:
		return nil, errors.New("promotion lister is required")
	case deps.Sender == nil:
		return nil, errors.New("sender is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Logger()
	}

	d := &Dispatcher{
		sessions:   deps.Sessions,
		flows:      deps.Flows,
		policy:     deps.Policy,
		users:      deps.Users,
		promotions: deps.Promotions,
		sender:     deps.Sender,
		metrics:    deps.Metrics,
		logger:     logger,
	}

	d.routes = map[chat.Action]route{
		chat.ActionStart:         {handle: d.start},
		chat.ActionPromotions:    {handle: d.showPromotions},
		chat.ActionMyDiscount:    {handle: d.showDiscount},
		chat.ActionMyProfile:     {handle: d.showProfile},
		chat.ActionBack:          {handle: d.back},
		chat.ActionAdminPanel:    {adminOnly: true, handle: d.adminPanel},
		chat.ActionAddPromotion:  {adminOnly: true, handle: d.addPromotion},
		chat.ActionManageClients: {adminOnly: true, handle: d.manageClients},
		chat.ActionListClients:   {adminOnly: true, handle: d.listClients},
		chat.ActionFindClient:    {adminOnly: true, handle: d.findClient},
		chat.ActionGrantDiscount: {adminOnly: true, handle: d.grantDiscount},
	}

	return d, nil
}

// Dispatch handles one inbound message. An active conversation always wins,
// so commands and menu labels sent mid-flow are plain input to that flow.
func (d *Dispatcher) Dispatch(ctx context.Context, msg chat.Message) error {
	if d == nil {
		return errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if msg.SenderID == "" {
		return errors.New("sender id is required")
	}

	started := time.Now()

	state, err := d.sessions.Get(ctx, msg.SenderID)
	if err != nil {
		return fmt.Errorf("load conversation state: %w", err)
	}
	if state != nil {
		return d.finish(ctx, RouteFlow, started, d.flows.Handle(ctx, state, msg))
	}

	r, ok := d.routes[msg.Action]
	if !ok {
		return d.finish(ctx, RouteDropped, started, nil)
	}

	if r.adminOnly {
		admin, err := d.policy.IsAdmin(ctx, msg.SenderID)
		if err != nil {
			return d.finish(ctx, msg.Action.String(), started, err)
		}
		if !admin {
			logging.FromContext(ctx, d.logger).WithFields(logging.Fields{
				"event":  "admin_action_denied",
				"action": msg.Action.String(),
			}).Info("ignoring admin action from non-admin")
			return d.finish(ctx, RouteDropped, started, nil)
		}
	}

	return d.finish(ctx, msg.Action.String(), started, r.handle(ctx, msg))
}

func (d *Dispatcher) finish(ctx context.Context, routeName string, started time.Time, err error) error {
	took := time.Since(started)
	d.metrics.ObserveUpdate(routeName, took)

	entry := logging.FromContext(ctx, d.logger).WithFields(logging.Fields{
		"event":       "update_handled",
		"route":       routeName,
		"duration_ms": took.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("update handling failed")
		return err
	}
	entry.Debug("update handled")
	return nil
}
