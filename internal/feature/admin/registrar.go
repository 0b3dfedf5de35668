// Package admin provides startup helpers for seeding the first administrator.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/logging"
)

type adminStore interface {
	Seed(ctx context.Context, id string) (bool, error)
}

// Registrar bootstraps the configured administrator.
type Registrar struct {
	admins adminStore
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided admin store.
func NewRegistrar(admins adminStore, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		admins: admins,
		logger: logger,
	}
}

// EnsureAdmin adds adminID to the admin set when the set is empty. A
// populated set is left untouched.
func (r *Registrar) EnsureAdmin(ctx context.Context, adminID int64) error {
	if r == nil || r.admins == nil {
		return errors.New("admin registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if adminID == 0 {
		return errors.New("admin id is required")
	}

	id := strconv.FormatInt(adminID, 10)
	seeded, err := r.admins.Seed(ctx, id)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "admin_bootstrap",
		"admin_id": id,
		"seeded":   seeded,
	}).Info("ensured bootstrap admin")

	return nil
}
