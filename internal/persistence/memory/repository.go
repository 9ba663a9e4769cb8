// Package memory provides an in-memory Repository for tests and local
// development. It mirrors the Postgres semantics: unique email and badge
// code, first-write-wins activities, all-or-nothing imports.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/checkin/internal/domain"
)

// Errors returned when a write trips a uniqueness backstop, mirroring the
// store's constraint violations.
var (
	ErrDuplicateEmail = fmt.Errorf("duplicate email")
	ErrDuplicateBadge = fmt.Errorf("duplicate badge code")
)

// Repository stores users, activities and scans in memory.
type Repository struct {
	mu            sync.RWMutex
	users         map[int64]domain.User
	userOrder     []int64
	activities    map[string]string // name -> category
	activityOrder []string
	scans         []domain.Scan
	nextUserID    int64
	nextScanID    int64
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		users:      make(map[int64]domain.User),
		activities: make(map[string]string),
	}
}

// SeedUser inserts a user directly, for test setup.
func (r *Repository) SeedUser(email, name, phone string, badgeCode *string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextUserID++
	user := domain.User{
		ID:        r.nextUserID,
		Email:     email,
		Name:      name,
		Phone:     phone,
		BadgeCode: domain.NormalizeBadgeCode(badgeCode),
		UpdatedAt: time.Now().UTC(),
	}
	r.users[user.ID] = user
	r.userOrder = append(r.userOrder, user.ID)
	return user
}

// SeedActivity inserts an activity directly, for test setup. First write
// wins, matching the store semantics.
func (r *Repository) SeedActivity(name, category string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.activities[name]; !seen {
		r.activities[name] = category
		r.activityOrder = append(r.activityOrder, name)
	}
}

// GetUserByID implements domain.Repository.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// GetUserByEmail implements domain.Repository.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findBy(func(u domain.User) bool { return u.Email == email }), nil
}

// GetUserByBadge implements domain.Repository.
func (r *Repository) GetUserByBadge(ctx context.Context, badgeCode string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findBy(func(u domain.User) bool {
		return u.BadgeCode != nil && *u.BadgeCode == badgeCode
	}), nil
}

func (r *Repository) findBy(match func(domain.User) bool) *domain.User {
	for _, id := range r.userOrder {
		user := r.users[id]
		if match(user) {
			return &user
		}
	}
	return nil
}

// ListUsers implements domain.Repository.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.userOrder))
	for _, id := range r.userOrder {
		users = append(users, r.users[id])
	}
	return users, nil
}

// ScansForUser implements domain.Repository.
func (r *Repository) ScansForUser(ctx context.Context, userID int64) ([]domain.ScanDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	details := make([]domain.ScanDetail, 0)
	for _, scan := range r.scans {
		if scan.UserID != userID {
			continue
		}
		details = append(details, domain.ScanDetail{
			ActivityName:     scan.ActivityName,
			ScannedAt:        scan.ScannedAt,
			ActivityCategory: r.activities[scan.ActivityName],
		})
	}
	return details, nil
}

// UpdateUser implements domain.Repository.
func (r *Repository) UpdateUser(ctx context.Context, user domain.User, at time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if err := r.checkUnique(user); err != nil {
		return nil, err
	}

	current.Email = user.Email
	current.Name = user.Name
	current.Phone = user.Phone
	current.BadgeCode = user.BadgeCode
	current.UpdatedAt = at
	r.users[user.ID] = current
	return &current, nil
}

func (r *Repository) checkUnique(user domain.User) error {
	for _, id := range r.userOrder {
		if id == user.ID {
			continue
		}
		other := r.users[id]
		if other.Email == user.Email {
			return ErrDuplicateEmail
		}
		if user.BadgeCode != nil && other.BadgeCode != nil && *other.BadgeCode == *user.BadgeCode {
			return ErrDuplicateBadge
		}
	}
	return nil
}

// CreateScan implements domain.Repository.
func (r *Repository) CreateScan(ctx context.Context, userID int64, activityName, activityCategory string, at time.Time) (*domain.Scan, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, "", domain.ErrUserNotFound
	}

	if _, seen := r.activities[activityName]; !seen {
		r.activities[activityName] = activityCategory
		r.activityOrder = append(r.activityOrder, activityName)
	}

	r.nextScanID++
	scan := domain.Scan{ID: r.nextScanID, UserID: userID, ActivityName: activityName, ScannedAt: at}
	r.scans = append(r.scans, scan)

	user.UpdatedAt = at
	r.users[userID] = user

	return &scan, r.activities[activityName], nil
}

// ActivityFrequencies implements domain.Repository.
func (r *Repository) ActivityFrequencies(ctx context.Context, filter domain.FrequencyFilter) ([]domain.ActivityFrequency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64, len(r.activities))
	for _, scan := range r.scans {
		counts[scan.ActivityName]++
	}

	results := make([]domain.ActivityFrequency, 0, len(r.activityOrder))
	for _, name := range r.activityOrder {
		category := r.activities[name]
		if filter.Category != "" && category != filter.Category {
			continue
		}
		frequency := counts[name]
		if frequency < filter.MinFrequency {
			continue
		}
		if filter.MaxFrequency != nil && frequency > *filter.MaxFrequency {
			continue
		}
		results = append(results, domain.ActivityFrequency{
			ActivityName:     name,
			ActivityCategory: category,
			Frequency:        frequency,
		})
	}
	return results, nil
}

// Counts implements domain.Repository.
func (r *Repository) Counts(ctx context.Context) (domain.RowCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return domain.RowCounts{
		Users:      int64(len(r.users)),
		Activities: int64(len(r.activities)),
		Scans:      int64(len(r.scans)),
	}, nil
}

// ImportUsers implements domain.Repository. The batch is applied to a
// scratch copy first so a failure leaves the repository untouched.
func (r *Repository) ImportUsers(ctx context.Context, batch []domain.ImportUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scratch := r.clone()
	for _, record := range batch {
		now := time.Now().UTC()

		var userID int64
		if existing := scratch.findBy(func(u domain.User) bool { return u.Email == record.Email }); existing != nil {
			userID = existing.ID
			updated := scratch.users[userID]
			updated.Name = record.Name
			updated.Phone = record.Phone
			updated.BadgeCode = record.BadgeCode
			updated.UpdatedAt = now
			scratch.users[userID] = updated
		} else {
			scratch.nextUserID++
			userID = scratch.nextUserID
			scratch.users[userID] = domain.User{
				ID:        userID,
				Email:     record.Email,
				Name:      record.Name,
				Phone:     record.Phone,
				BadgeCode: record.BadgeCode,
				UpdatedAt: now,
			}
			scratch.userOrder = append(scratch.userOrder, userID)
		}
		if err := scratch.checkUnique(scratch.users[userID]); err != nil {
			return err
		}

		for _, scan := range record.Scans {
			if _, seen := scratch.activities[scan.ActivityName]; !seen {
				scratch.activities[scan.ActivityName] = scan.ActivityCategory
				scratch.activityOrder = append(scratch.activityOrder, scan.ActivityName)
			}
			scratch.nextScanID++
			scratch.scans = append(scratch.scans, domain.Scan{
				ID:           scratch.nextScanID,
				UserID:       userID,
				ActivityName: scan.ActivityName,
				ScannedAt:    scan.ScannedAt,
			})
		}

		bumped := scratch.users[userID]
		bumped.UpdatedAt = time.Now().UTC()
		scratch.users[userID] = bumped
	}

	r.users = scratch.users
	r.userOrder = scratch.userOrder
	r.activities = scratch.activities
	r.activityOrder = scratch.activityOrder
	r.scans = scratch.scans
	r.nextUserID = scratch.nextUserID
	r.nextScanID = scratch.nextScanID
	return nil
}

func (r *Repository) clone() *Repository {
	users := make(map[int64]domain.User, len(r.users))
	for id, user := range r.users {
		users[id] = user
	}
	activities := make(map[string]string, len(r.activities))
	for name, category := range r.activities {
		activities[name] = category
	}
	return &Repository{
		users:         users,
		userOrder:     append([]int64(nil), r.userOrder...),
		activities:    activities,
		activityOrder: append([]string(nil), r.activityOrder...),
		scans:         append([]domain.Scan(nil), r.scans...),
		nextUserID:    r.nextUserID,
		nextScanID:    r.nextScanID,
	}
}
