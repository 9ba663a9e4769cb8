// Package domain defines the business logic for the check-in service.
package domain

import (
	"context"
	"strings"
	"time"
)

// Repository captures persistence operations. Lookups return (nil, nil)
// when the row is absent. Mutating methods commit all of their rows in a
// single transaction and roll back on failure; the store's unique
// constraints are the final backstop for the service's pre-checks.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByBadge(ctx context.Context, badgeCode string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ScansForUser(ctx context.Context, userID int64) ([]ScanDetail, error)

	// UpdateUser persists email, name, phone and badge code for an existing
	// user and bumps updated_at.
	UpdateUser(ctx context.Context, user User, at time.Time) (*User, error)

	// CreateScan inserts a scan, lazily creating the activity and bumping
	// the owner's updated_at, all in one transaction. The returned category
	// is the stored one, which wins over the caller's value when the
	// activity already existed.
	CreateScan(ctx context.Context, userID int64, activityName, activityCategory string, at time.Time) (*Scan, string, error)

	ActivityFrequencies(ctx context.Context, filter FrequencyFilter) ([]ActivityFrequency, error)
	Counts(ctx context.Context) (RowCounts, error)

	// ImportUsers applies a whole bulk dataset in one all-or-nothing
	// transaction: upsert users by email, create unseen activities, insert
	// scans.
	ImportUsers(ctx context.Context, batch []ImportUser) error
}

// Service orchestrates check-in workflows over a Repository.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ScanRecord is the result of a recorded check-in.
type ScanRecord struct {
	UserID           int64
	UserEmail        string
	ActivityName     string
	ScannedAt        time.Time
	ActivityCategory string
}

// RecordScan checks a user, identified by badge code, into an activity.
// The user must already exist; the activity is created on first sight with
// the supplied category. The stored category is returned even when the
// caller passed a different one.
func (s *Service) RecordScan(ctx context.Context, badgeCode, activityName, activityCategory string) (*ScanRecord, error) {
	user, err := s.repo.GetUserByBadge(ctx, badgeCode)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if strings.TrimSpace(activityName) == "" || strings.TrimSpace(activityCategory) == "" {
		return nil, Validationf("Both 'activity_name' and 'activity_category' are required.")
	}

	now := time.Now().UTC()
	scan, storedCategory, err := s.repo.CreateScan(ctx, user.ID, activityName, activityCategory, now)
	if err != nil {
		return nil, err
	}

	return &ScanRecord{
		UserID:           user.ID,
		UserEmail:        user.Email,
		ActivityName:     scan.ActivityName,
		ScannedAt:        scan.ScannedAt,
		ActivityCategory: storedCategory,
	}, nil
}

// GetUser fetches a user with their derived scan history.
func (s *Service) GetUser(ctx context.Context, id int64) (*UserDetail, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	scans, err := s.repo.ScansForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: *user, Scans: scans}, nil
}

// ListUsers fetches every user with their derived scan history.
func (s *Service) ListUsers(ctx context.Context) ([]UserDetail, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	details := make([]UserDetail, 0, len(users))
	for _, user := range users {
		scans, err := s.repo.ScansForUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, UserDetail{User: user, Scans: scans})
	}
	return details, nil
}

// UpdateUserInput carries the subset of fields supplied by the caller. Nil
// pointers mean the field was absent. BadgeCodeSet distinguishes an
// explicit null badge_code, which clears the badge, from an omitted one.
type UpdateUserInput struct {
	Name         *string
	Phone        *string
	Email        *string
	BadgeCode    *string
	BadgeCodeSet bool
}

// UpdateUser applies the provided fields to an existing user. Unspecified
// fields keep their current value. The new email and badge code must not
// be held by a different user; either conflict is a ValidationError and
// leaves the store untouched.
func (s *Service) UpdateUser(ctx context.Context, id int64, input UpdateUserInput) (*UserDetail, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	newEmail := user.Email
	if input.Email != nil {
		newEmail = *input.Email
	}
	newBadge := user.BadgeCode
	if input.BadgeCodeSet {
		newBadge = NormalizeBadgeCode(input.BadgeCode)
	}

	if other, err := s.repo.GetUserByEmail(ctx, newEmail); err != nil {
		return nil, err
	} else if other != nil && other.ID != user.ID {
		return nil, Validationf("Email already in use.")
	}
	if newBadge != nil {
		if other, err := s.repo.GetUserByBadge(ctx, *newBadge); err != nil {
			return nil, err
		} else if other != nil && other.ID != user.ID {
			return nil, Validationf("Badge code already in use.")
		}
	}

	if input.Name != nil {
		user.Name = *input.Name
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	user.Email = newEmail
	user.BadgeCode = newBadge

	updated, err := s.repo.UpdateUser(ctx, *user, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	scans, err := s.repo.ScansForUser(ctx, updated.ID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: *updated, Scans: scans}, nil
}

// ActivityFrequencies returns the per-activity scan count aggregate.
func (s *Service) ActivityFrequencies(ctx context.Context, filter FrequencyFilter) ([]ActivityFrequency, error) {
	return s.repo.ActivityFrequencies(ctx, filter)
}

// NormalizeBadgeCode maps an empty or missing badge code to nil so the
// store never holds an empty string.
func NormalizeBadgeCode(code *string) *string {
	if code == nil || *code == "" {
		return nil
	}
	return code
}
