package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_loyalty_bot/internal/access"
	"tg_loyalty_bot/internal/chat"
	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/feature/user"
	"tg_loyalty_bot/internal/metrics"
	"tg_loyalty_bot/internal/session"
	"tg_loyalty_bot/internal/store"
)

type harness struct {
	controller *Controller
	sessions   *session.MemoryStore
	users      *domain.UserRepository
	promotions *domain.PromotionRepository
	admins     *domain.AdminRepository
	sender     *recordingSender
	metrics    *metrics.Metrics
	logger     *logrus.Entry
	hook       *logtest.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	hookLogger, hook := logtest.NewNullLogger()
	logger := logrus.NewEntry(hookLogger)

	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend returned error: %v", err)
	}
	s, err := store.New(backend, logger)
	if err != nil {
		t.Fatalf("store.New returned error: %v", err)
	}

	h := &harness{
		sessions:   session.NewMemoryStore(),
		users:      domain.NewUserRepository(s),
		promotions: domain.NewPromotionRepository(s),
		admins:     domain.NewAdminRepository(s),
		sender:     &recordingSender{},
		metrics:    metrics.New(prometheus.NewRegistry()),
		logger:     logger,
		hook:       hook,
	}
	if _, err := h.admins.Seed(context.Background(), "1"); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}

	h.controller = h.newController(t, user.NewRegistrar(h.users, logger))
	return h
}

func (h *harness) newController(t *testing.T, reg registrar) *Controller {
	t.Helper()

	controller, err := New(Deps{
		Sessions:   h.sessions,
		Users:      h.users,
		Registrar:  reg,
		Promotions: h.promotions,
		Menus:      access.NewPolicy(h.users, h.admins),
		Sender:     h.sender,
		Metrics:    h.metrics,
		Logger:     h.logger,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return controller
}

// deliver routes msg through the sender's current state.
func (h *harness) deliver(t *testing.T, msg chat.Message) {
	t.Helper()

	ctx := context.Background()
	state, err := h.sessions.Get(ctx, msg.SenderID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state == nil {
		t.Fatalf("expected user %s to be mid-flow", msg.SenderID)
	}
	if err := h.controller.Handle(ctx, state, msg); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
}

func (h *harness) step(t *testing.T, userID string) session.Step {
	t.Helper()

	state, err := h.sessions.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state == nil {
		return session.StepIdle
	}
	return state.Step
}

func text(userID, body string) chat.Message {
	return chat.Message{SenderID: userID, Text: body, Timestamp: time.Date(2024, 10, 1, 9, 30, 0, 0, time.UTC)}
}

func TestRegistrationScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartRegistration(ctx, "42"); err != nil {
		t.Fatalf("StartRegistration returned error: %v", err)
	}
	if got := h.step(t, "42"); got != session.StepRegistrationAwaitingName {
		t.Fatalf("expected awaiting-name, got %q", got)
	}
	if last := h.sender.last(t); last.Keyboard == nil || !last.Keyboard.Remove {
		t.Fatalf("expected name prompt to remove the keyboard, got %+v", last)
	}

	h.deliver(t, text("42", "Alice"))
	if got := h.step(t, "42"); got != session.StepRegistrationAwaitingPhone {
		t.Fatalf("expected awaiting-phone, got %q", got)
	}
	if last := h.sender.last(t); last.Keyboard == nil || last.Keyboard.RequestContact == "" {
		t.Fatalf("expected phone prompt to offer contact sharing, got %+v", last)
	}

	h.deliver(t, text("42", "+15551234567"))

	got, err := h.users.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	want := domain.User{Name: "Alice", Phone: "+15551234567", Discount: 0, RegistrationDate: "2024-10-01T09:30:00Z"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if step := h.step(t, "42"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}

	menu := h.sender.last(t)
	if menu.Text != textMainMenu || menu.Keyboard == nil {
		t.Fatalf("expected main menu after registration, got %+v", menu)
	}
	if !hasLabel(menu.Keyboard, chat.LabelMyProfile) || hasLabel(menu.Keyboard, chat.LabelAdminPanel) {
		t.Fatalf("unexpected main menu rows %v", menu.Keyboard.Rows)
	}

	if v := testutil.ToFloat64(h.metrics.FlowsCompleted.WithLabelValues(FlowRegistration)); v != 1 {
		t.Fatalf("expected 1 completed registration, got %v", v)
	}
}

func TestRegistrationEmptyNameRetries(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.StartRegistration(context.Background(), "42"); err != nil {
		t.Fatalf("StartRegistration returned error: %v", err)
	}

	h.deliver(t, text("42", "   "))
	if got := h.step(t, "42"); got != session.StepRegistrationAwaitingName {
		t.Fatalf("expected to stay in awaiting-name, got %q", got)
	}
	if h.sender.last(t).Text != textAskNameAgain {
		t.Fatalf("expected name re-prompt")
	}
}

func TestRegistrationInvalidPhonesStayInStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartRegistration(ctx, "42"); err != nil {
		t.Fatalf("StartRegistration returned error: %v", err)
	}
	h.deliver(t, text("42", "Alice"))

	for _, phone := range []string{"12345", "+1 555 123 4567", "phone", "+1234567890123456", "", chat.LabelPromotions, "/start"} {
		h.deliver(t, text("42", phone))

		if got := h.step(t, "42"); got != session.StepRegistrationAwaitingPhone {
			t.Fatalf("phone %q: expected to stay in awaiting-phone, got %q", phone, got)
		}
		if h.sender.last(t).Text != textInvalidPhone {
			t.Fatalf("phone %q: expected invalid phone reply", phone)
		}
		if exists, _ := h.users.Exists(ctx, "42"); exists {
			t.Fatalf("phone %q: no user must be created", phone)
		}
	}

	state, _ := h.sessions.Get(ctx, "42")
	if state.Value(session.KeyName) != "Alice" {
		t.Fatalf("expected collected name to survive retries, got %+v", state)
	}
}

func TestRegistrationPrefersSharedContact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartRegistration(ctx, "42"); err != nil {
		t.Fatalf("StartRegistration returned error: %v", err)
	}
	h.deliver(t, text("42", "Alice"))

	msg := text("42", "not a phone")
	msg.Contact = &chat.Contact{PhoneNumber: "79991234567"}
	h.deliver(t, msg)

	got, err := h.users.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Phone != "79991234567" {
		t.Fatalf("expected contact phone, got %q", got.Phone)
	}
}

func TestRegistrationRaceAnswersWelcomeBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartRegistration(ctx, "42"); err != nil {
		t.Fatalf("StartRegistration returned error: %v", err)
	}
	h.deliver(t, text("42", "Alice"))

	if _, err := h.users.Create(ctx, "42", domain.User{Name: "Earlier", Phone: "+15550000000"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	h.deliver(t, text("42", "+15551234567"))

	got, _ := h.users.Get(ctx, "42")
	if got.Name != "Earlier" {
		t.Fatalf("expected existing record to be kept, got %+v", got)
	}
	if !h.sender.contains(textWelcomeBack) {
		t.Fatalf("expected welcome back reply")
	}
	if step := h.step(t, "42"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}
}

func TestRegistrationPersistenceFailureResetsConversation(t *testing.T) {
	h := newHarness(t)
	h.controller = h.newController(t, failingRegistrar{err: errors.New("disk full")})
	ctx := context.Background()

	if err := h.controller.StartRegistration(ctx, "42"); err != nil {
		t.Fatalf("StartRegistration returned error: %v", err)
	}
	h.deliver(t, text("42", "Alice"))
	h.deliver(t, text("42", "+15551234567"))

	if h.sender.last(t).Text != textSomethingWrong {
		t.Fatalf("expected generic failure reply, got %q", h.sender.last(t).Text)
	}
	if entry := h.hook.LastEntry(); entry == nil || entry.Data["event"] != "flow_failed" || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected flow_failed error log, got %v", entry)
	}
	if step := h.step(t, "42"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}
}

func TestAddPromotionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartAddPromotion(ctx, "1"); err != nil {
		t.Fatalf("StartAddPromotion returned error: %v", err)
	}
	h.deliver(t, text("1", "Fall Sale"))
	if got := h.step(t, "1"); got != session.StepAddPromotionAwaitingDesc {
		t.Fatalf("expected awaiting-description, got %q", got)
	}
	h.deliver(t, text("1", "20% off"))

	list, err := h.promotions.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 promotion, got %d", len(list))
	}
	if list[0].ID != "1" || list[0].Title != "Fall Sale" || list[0].Description != "20% off" {
		t.Fatalf("unexpected promotion %+v", list[0])
	}

	if step := h.step(t, "1"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}
	if !h.sender.contains(textPromotionAdded) {
		t.Fatalf("expected confirmation reply")
	}
	if last := h.sender.last(t); last.Text != textAdminPanel || !hasLabel(last.Keyboard, chat.LabelAddPromotion) {
		t.Fatalf("expected admin panel after creation, got %+v", last)
	}
}

func TestAddPromotionEmptyTitleRetries(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.StartAddPromotion(context.Background(), "1"); err != nil {
		t.Fatalf("StartAddPromotion returned error: %v", err)
	}

	msg := text("1", "")
	msg.Contact = &chat.Contact{PhoneNumber: "+15551234567"}
	h.deliver(t, msg)

	if got := h.step(t, "1"); got != session.StepAddPromotionAwaitingTitle {
		t.Fatalf("expected to stay in awaiting-title, got %q", got)
	}
}

func TestSetDiscountScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.users.Create(ctx, "42", domain.User{Name: "Alice", Phone: "+15551234567"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := h.controller.StartSetDiscount(ctx, "1"); err != nil {
		t.Fatalf("StartSetDiscount returned error: %v", err)
	}
	h.deliver(t, text("1", "42 15"))

	got, _ := h.users.Get(ctx, "42")
	if got.Discount != 15 {
		t.Fatalf("expected discount 15, got %d", got.Discount)
	}
	if last := h.sender.last(t); !strings.Contains(last.Text, "<b>Alice</b>") || !strings.Contains(last.Text, "15%") {
		t.Fatalf("expected confirmation naming the user, got %q", last.Text)
	}
	if step := h.step(t, "1"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}

	if err := h.controller.StartSetDiscount(ctx, "1"); err != nil {
		t.Fatalf("StartSetDiscount returned error: %v", err)
	}
	h.deliver(t, text("1", "42 150"))

	got, _ = h.users.Get(ctx, "42")
	if got.Discount != 15 {
		t.Fatalf("expected discount to remain 15, got %d", got.Discount)
	}
	if h.sender.last(t).Text != textDiscountRange {
		t.Fatalf("expected range error, got %q", h.sender.last(t).Text)
	}
	if step := h.step(t, "1"); step != session.StepIdle {
		t.Fatalf("expected rejected discount to clear state, got %q", step)
	}
}

func TestSetDiscountMalformedInputClearsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, input := range []string{"42", "42 ten", "42 1 2", ""} {
		if err := h.controller.StartSetDiscount(ctx, "1"); err != nil {
			t.Fatalf("StartSetDiscount returned error: %v", err)
		}
		h.deliver(t, text("1", input))

		if h.sender.last(t).Text != textInvalidDiscount {
			t.Fatalf("input %q: expected format error, got %q", input, h.sender.last(t).Text)
		}
		if step := h.step(t, "1"); step != session.StepIdle {
			t.Fatalf("input %q: expected state to be cleared, got %q", input, step)
		}
	}

	if v := testutil.ToFloat64(h.metrics.ValidationFailures.WithLabelValues(string(session.StepSetDiscountAwaitingInput))); v != 4 {
		t.Fatalf("expected 4 validation failures, got %v", v)
	}
}

func TestSetDiscountUnknownUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartSetDiscount(ctx, "1"); err != nil {
		t.Fatalf("StartSetDiscount returned error: %v", err)
	}
	h.deliver(t, text("1", "404 10"))

	if h.sender.last(t).Text != textUserNotFound {
		t.Fatalf("expected not found reply, got %q", h.sender.last(t).Text)
	}
	if step := h.step(t, "1"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}
}

func TestConcurrentDiscountAssignments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, id := range []string{"42", "43"} {
		if _, err := h.users.Create(ctx, id, domain.User{Name: id, Phone: "+1555123456" + id[1:]}); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}
	var wg sync.WaitGroup
	for admin, command := range map[string]string{"1": "42 10", "2": "43 20"} {
		if err := h.controller.StartSetDiscount(ctx, admin); err != nil {
			t.Fatalf("StartSetDiscount returned error: %v", err)
		}
		state, _ := h.sessions.Get(ctx, admin)

		wg.Add(1)
		go func(admin, command string, state *session.State) {
			defer wg.Done()
			if err := h.controller.Handle(ctx, state, text(admin, command)); err != nil {
				t.Errorf("Handle returned error: %v", err)
			}
		}(admin, command, state)
	}
	wg.Wait()

	first, _ := h.users.Get(ctx, "42")
	second, _ := h.users.Get(ctx, "43")
	if first.Discount != 10 || second.Discount != 20 {
		t.Fatalf("expected discounts 10 and 20, got %d and %d", first.Discount, second.Discount)
	}
}

func TestFindClientListsMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.users.Create(ctx, "42", domain.User{Name: "<Alice>", Phone: "+15551234567", Discount: 5}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := h.users.Create(ctx, "43", domain.User{Name: "Bob", Phone: "+15557654321"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := h.controller.StartFindClient(ctx, "1"); err != nil {
		t.Fatalf("StartFindClient returned error: %v", err)
	}
	h.deliver(t, text("1", " +15551234567 "))

	reply := h.sender.last(t).Text
	if !strings.HasPrefix(reply, textSearchResults) {
		t.Fatalf("expected search results, got %q", reply)
	}
	if !strings.Contains(reply, "&lt;Alice&gt; (ID: 42)") || !strings.Contains(reply, "5%") {
		t.Fatalf("expected escaped match for user 42, got %q", reply)
	}
	if strings.Contains(reply, "Bob") {
		t.Fatalf("unexpected non-matching user in %q", reply)
	}
	if step := h.step(t, "1"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}
}

func TestFindClientNotFoundClearsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.controller.StartFindClient(ctx, "1"); err != nil {
		t.Fatalf("StartFindClient returned error: %v", err)
	}
	h.deliver(t, text("1", "+10000000000"))

	if h.sender.last(t).Text != textClientNotFound {
		t.Fatalf("expected not found reply, got %q", h.sender.last(t).Text)
	}
	if step := h.step(t, "1"); step != session.StepIdle {
		t.Fatalf("expected state to be cleared, got %q", step)
	}
}

func TestHandleUnknownStepClearsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state := &session.State{UserID: "9", Step: session.Step("legacy:step")}
	if err := h.sessions.Set(ctx, state); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if err := h.controller.Handle(ctx, state, text("9", "hi")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if step := h.step(t, "9"); step != session.StepIdle {
		t.Fatalf("expected unknown step to be cleared, got %q", step)
	}
	if len(h.sender.replies) != 0 {
		t.Fatalf("expected no reply for unknown step")
	}
}

func TestNewValidatesDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}

	var c *Controller
	if err := c.Handle(context.Background(), &session.State{}, chat.Message{}); err == nil {
		t.Fatalf("expected error for nil controller")
	}
}

func TestSendErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("blocked by user")

	err := h.controller.StartFindClient(context.Background(), "1")
	if !errors.Is(err, h.sender.err) {
		t.Fatalf("expected send error, got %v", err)
	}
}

type recordingSender struct {
	mu      sync.Mutex
	replies []chat.Reply
	err     error
}

func (s *recordingSender) Send(_ context.Context, reply chat.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.replies = append(s.replies, reply)
	return nil
}

func (s *recordingSender) last(t *testing.T) chat.Reply {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		t.Fatalf("expected at least one reply")
	}
	return s.replies[len(s.replies)-1]
}

func (s *recordingSender) contains(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reply := range s.replies {
		if reply.Text == text {
			return true
		}
	}
	return false
}

func hasLabel(kb *chat.Keyboard, label string) bool {
	if kb == nil {
		return false
	}
	for _, row := range kb.Rows {
		for _, l := range row {
			if l == label {
				return true
			}
		}
	}
	return false
}

type failingRegistrar struct {
	err error
}

func (f failingRegistrar) Register(context.Context, string, string, string, time.Time) (domain.User, error) {
	return domain.User{}, f.err
}
