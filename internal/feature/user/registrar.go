// Package user persists completed customer registrations.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/logging"
)

type userStore interface {
	Create(ctx context.Context, id string, user domain.User) (domain.User, error)
}

// Registrar creates a user record exactly once per id.
type Registrar struct {
	users  userStore
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided user store.
func NewRegistrar(users userStore, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// Register stores a new user with a zero discount and the registration time
// formatted as RFC 3339. It returns domain.ErrUserExists when the id is
// already registered.
func (r *Registrar) Register(ctx context.Context, id, name, phone string, registeredAt time.Time) (domain.User, error) {
	if r == nil || r.users == nil {
		return domain.User{}, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return domain.User{}, errors.New("context is required")
	}
	if strings.TrimSpace(id) == "" {
		return domain.User{}, errors.New("user id is required")
	}
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}

	user, err := r.users.Create(ctx, id, domain.User{
		Name:             name,
		Phone:            phone,
		Discount:         0,
		RegistrationDate: registeredAt.Format(time.RFC3339),
	})
	if errors.Is(err, domain.ErrUserExists) {
		logging.FromContext(ctx, r.logger).WithFields(logging.Fields{
			"event":   "user_seen",
			"user_id": id,
		}).Debug("user already registered")
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("register user: %w", err)
	}

	logging.FromContext(ctx, r.logger).WithFields(logging.Fields{
		"event":   "user_registered",
		"user_id": id,
	}).Info("registered new user")

	return user, nil
}
