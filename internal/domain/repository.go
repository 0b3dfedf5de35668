package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tg_loyalty_bot/internal/store"
)

var (
	// ErrUserNotFound is returned when no user exists for an id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when registering an id that is already present.
	ErrUserExists = errors.New("user already registered")
)

// UserRepository persists users in the users collection.
type UserRepository struct {
	store *store.Store
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(s *store.Store) *UserRepository {
	return &UserRepository{store: s}
}

// Get fetches a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (User, error) {
	if err := r.validate(ctx); err != nil {
		return User{}, err
	}

	users, err := store.Load[User](ctx, r.store, store.CollectionUsers)
	if err != nil {
		return User{}, fmt.Errorf("load users: %w", err)
	}

	user, ok := users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// Exists reports whether a user is registered.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts a new user. Existing records are never overwritten.
func (r *UserRepository) Create(ctx context.Context, id string, user User) (User, error) {
	if err := r.validate(ctx); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(id) == "" {
		return User{}, errors.New("user id is required")
	}
	if !ValidPhone(user.Phone) {
		return User{}, fmt.Errorf("invalid phone %q", user.Phone)
	}
	if !ValidDiscount(user.Discount) {
		return User{}, ErrDiscountOutOfRange
	}

	err := store.Update(ctx, r.store, store.CollectionUsers, func(users map[string]User) error {
		if _, ok := users[id]; ok {
			return ErrUserExists
		}
		users[id] = user
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// SetDiscount updates the discount of an existing user and returns the
// updated record.
func (r *UserRepository) SetDiscount(ctx context.Context, id string, discount int) (User, error) {
	if err := r.validate(ctx); err != nil {
		return User{}, err
	}
	if !ValidDiscount(discount) {
		return User{}, ErrDiscountOutOfRange
	}

	var updated User
	err := store.Update(ctx, r.store, store.CollectionUsers, func(users map[string]User) error {
		user, ok := users[id]
		if !ok {
			return ErrUserNotFound
		}
		user.Discount = discount
		users[id] = user
		updated = user
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("set discount: %w", err)
	}

	return updated, nil
}

// FindByPhone returns every user whose phone equals phone exactly.
func (r *UserRepository) FindByPhone(ctx context.Context, phone string) ([]UserRecord, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var found []UserRecord
	for _, record := range all {
		if record.Phone == phone {
			found = append(found, record)
		}
	}
	return found, nil
}

// List returns all users ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]UserRecord, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}

	users, err := store.Load[User](ctx, r.store, store.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	records := make([]UserRecord, 0, len(users))
	for id, user := range users {
		records = append(records, UserRecord{ID: id, User: user})
	}
	sort.Slice(records, func(i, j int) bool {
		return lessID(records[i].ID, records[j].ID)
	})

	return records, nil
}

func (r *UserRepository) validate(ctx context.Context) error {
	if r == nil || r.store == nil {
		return errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// PromotionRepository persists promotions in the promotions collection.
type PromotionRepository struct {
	store *store.Store
}

// NewPromotionRepository constructs a PromotionRepository.
func NewPromotionRepository(s *store.Store) *PromotionRepository {
	return &PromotionRepository{store: s}
}

// Create stores a promotion under the id count+1. The id is derived while the
// collection lock is held so concurrent creations never collide.
func (r *PromotionRepository) Create(ctx context.Context, promotion Promotion) (PromotionRecord, error) {
	if r == nil || r.store == nil {
		return PromotionRecord{}, errors.New("promotion repository is not initialized")
	}
	if ctx == nil {
		return PromotionRecord{}, errors.New("context is required")
	}

	var id string
	err := store.Update(ctx, r.store, store.CollectionPromotions, func(promotions map[string]Promotion) error {
		id = strconv.Itoa(len(promotions) + 1)
		if _, taken := promotions[id]; taken {
			return fmt.Errorf("promotion id %s already taken", id)
		}
		promotions[id] = promotion
		return nil
	})
	if err != nil {
		return PromotionRecord{}, fmt.Errorf("create promotion: %w", err)
	}

	return PromotionRecord{ID: id, Promotion: promotion}, nil
}

// List returns all promotions ordered by numeric id.
func (r *PromotionRepository) List(ctx context.Context) ([]PromotionRecord, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("promotion repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	promotions, err := store.Load[Promotion](ctx, r.store, store.CollectionPromotions)
	if err != nil {
		return nil, fmt.Errorf("load promotions: %w", err)
	}

	records := make([]PromotionRecord, 0, len(promotions))
	for id, promotion := range promotions {
		records = append(records, PromotionRecord{ID: id, Promotion: promotion})
	}
	sort.Slice(records, func(i, j int) bool {
		return lessID(records[i].ID, records[j].ID)
	})

	return records, nil
}

// AdminRepository reads and seeds the flat admin set.
type AdminRepository struct {
	store *store.Store
}

// NewAdminRepository constructs an AdminRepository.
func NewAdminRepository(s *store.Store) *AdminRepository {
	return &AdminRepository{store: s}
}

// IsAdmin reports whether id is present in the admin set.
func (r *AdminRepository) IsAdmin(ctx context.Context, id string) (bool, error) {
	if r == nil || r.store == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	admins, err := store.Load[bool](ctx, r.store, store.CollectionAdmins)
	if err != nil {
		return false, fmt.Errorf("load admins: %w", err)
	}

	_, ok := admins[id]
	return ok, nil
}

// Seed adds id to the admin set only when the set is empty. It reports
// whether the seed was written.
func (r *AdminRepository) Seed(ctx context.Context, id string) (bool, error) {
	if r == nil || r.store == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if strings.TrimSpace(id) == "" {
		return false, errors.New("admin id is required")
	}

	errNotEmpty := errors.New("admin set not empty")
	err := store.Update(ctx, r.store, store.CollectionAdmins, func(admins map[string]bool) error {
		if len(admins) > 0 {
			return errNotEmpty
		}
		admins[id] = true
		return nil
	})
	if errors.Is(err, errNotEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}

	return true, nil
}

// lessID orders numeric ids numerically and falls back to string order.
func lessID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
