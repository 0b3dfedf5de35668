package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_loyalty_bot/internal/domain"
)

func TestRegisterCreatesNewRecord(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	users := newFakeUsers()
	registrar := NewRegistrar(users, logrus.NewEntry(hookLogger))

	at := time.Date(2024, 7, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	created, err := registrar.Register(context.Background(), "42", "Alice", "+15551234567", at)
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	want := domain.User{
		Name:             "Alice",
		Phone:            "+15551234567",
		Discount:         0,
		RegistrationDate: "2024-07-01T12:00:00+03:00",
	}
	if created != want {
		t.Fatalf("expected %+v, got %+v", want, created)
	}
	if users.docs["42"] != want {
		t.Fatalf("expected stored %+v, got %+v", want, users.docs["42"])
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "user_registered" || entry.Data["user_id"] != "42" {
		t.Fatalf("expected user_registered log entry, got %v", entry)
	}
}

func TestRegisterNeverOverwritesExistingUser(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	users := newFakeUsers()
	users.docs["42"] = domain.User{Name: "Alice", Phone: "+15551234567", Discount: 15}
	registrar := NewRegistrar(users, logrus.NewEntry(hookLogger))

	_, err := registrar.Register(context.Background(), "42", "Mallory", "+15550000000", time.Now())
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if users.docs["42"].Name != "Alice" || users.docs["42"].Discount != 15 {
		t.Fatalf("expected existing record to be untouched, got %+v", users.docs["42"])
	}
}

func TestRegisterWrapsStoreErrors(t *testing.T) {
	users := newFakeUsers()
	users.err = errors.New("disk full")
	registrar := NewRegistrar(users, nil)

	_, err := registrar.Register(context.Background(), "1", "A", "+15551234567", time.Now())
	if !errors.Is(err, users.err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestRegisterValidatesInputs(t *testing.T) {
	registrar := NewRegistrar(newFakeUsers(), nil)

	if _, err := registrar.Register(nil, "1", "A", "+15551234567", time.Now()); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := registrar.Register(context.Background(), " ", "A", "+15551234567", time.Now()); err == nil {
		t.Fatalf("expected error for empty id")
	}

	var nilRegistrar *Registrar
	if _, err := nilRegistrar.Register(context.Background(), "1", "A", "+15551234567", time.Now()); err == nil {
		t.Fatalf("expected error for nil registrar")
	}
}

type fakeUsers struct {
	docs map[string]domain.User
	err  error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{docs: make(map[string]domain.User)}
}

func (f *fakeUsers) Create(_ context.Context, id string, user domain.User) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	if _, ok := f.docs[id]; ok {
		return domain.User{}, domain.ErrUserExists
	}
	f.docs[id] = user
	return user, nil
}
