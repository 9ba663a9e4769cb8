// Package postgres provides pgx-backed persistence for users, activities
// and scans.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/checkin/internal/domain"
	"example.com/checkin/internal/observability"
)

// Repository implements domain.Repository on top of a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, phone, badge_code, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.BadgeCode, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by numeric identifier.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

// GetUserByBadge retrieves a user by badge code.
func (r *Repository) GetUserByBadge(ctx context.Context, badgeCode string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE badge_code=$1`, badgeCode)
	return scanUser(row)
}

// ListUsers returns all users in insertion order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.BadgeCode, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ScansForUser returns a user's scans enriched with the activity category,
// joined at read time rather than stored redundantly.
func (r *Repository) ScansForUser(ctx context.Context, userID int64) ([]domain.ScanDetail, error) {
	const query = `SELECT s.activity_name, s.scanned_at, a.activity_category
        FROM scans s
        JOIN activities a ON a.activity_name = s.activity_name
        WHERE s.user_id = $1
        ORDER BY s.id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]domain.ScanDetail, 0)
	for rows.Next() {
		var detail domain.ScanDetail
		if err := rows.Scan(&detail.ActivityName, &detail.ScannedAt, &detail.ActivityCategory); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

// UpdateUser persists the mutable fields and bumps updated_at. The unique
// constraints on email and badge_code reject races the service's
// pre-checks missed.
func (r *Repository) UpdateUser(ctx context.Context, user domain.User, at time.Time) (*domain.User, error) {
	const stmt = `UPDATE users SET email=$2, name=$3, phone=$4, badge_code=$5, updated_at=$6
        WHERE id=$1
        RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, stmt, user.ID, user.Email, user.Name, user.Phone, user.BadgeCode, at)
	updated, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrUserNotFound
	}
	return updated, nil
}

// CreateScan inserts the scan, the activity when unseen, and the owner's
// updated_at bump in a single transaction.
func (r *Repository) CreateScan(ctx context.Context, userID int64, activityName, activityCategory string, at time.Time) (*domain.Scan, string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// First write wins: an existing activity keeps its category.
	if _, err = tx.Exec(ctx,
		`INSERT INTO activities (activity_name, activity_category) VALUES ($1, $2)
         ON CONFLICT (activity_name) DO NOTHING`,
		activityName, activityCategory); err != nil {
		return nil, "", err
	}

	var storedCategory string
	if err = tx.QueryRow(ctx,
		`SELECT activity_category FROM activities WHERE activity_name=$1`,
		activityName).Scan(&storedCategory); err != nil {
		return nil, "", err
	}

	scan := domain.Scan{UserID: userID, ActivityName: activityName, ScannedAt: at}
	if err = tx.QueryRow(ctx,
		`INSERT INTO scans (user_id, activity_name, scanned_at) VALUES ($1, $2, $3) RETURNING id`,
		userID, activityName, at).Scan(&scan.ID); err != nil {
		return nil, "", err
	}

	if _, err = tx.Exec(ctx, `UPDATE users SET updated_at=$2 WHERE id=$1`, userID, at); err != nil {
		return nil, "", err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, "", err
	}

	observability.RecordScanPersisted(at)
	return &scan, storedCategory, nil
}

// ActivityFrequencies counts scans per activity. The outer join keeps
// zero-scan activities; the frequency bounds are HAVING predicates so they
// apply after grouping.
func (r *Repository) ActivityFrequencies(ctx context.Context, filter domain.FrequencyFilter) ([]domain.ActivityFrequency, error) {
	const query = `SELECT a.activity_name, a.activity_category, COUNT(s.id) AS frequency
        FROM activities a
        LEFT JOIN scans s ON s.activity_name = a.activity_name
        WHERE $3::text = '' OR a.activity_category = $3
        GROUP BY a.activity_name, a.activity_category
        HAVING COUNT(s.id) >= $1 AND ($2::bigint IS NULL OR COUNT(s.id) <= $2)`

	rows, err := r.pool.Query(ctx, query, filter.MinFrequency, filter.MaxFrequency, filter.Category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityFrequency, 0)
	for rows.Next() {
		var freq domain.ActivityFrequency
		if err := rows.Scan(&freq.ActivityName, &freq.ActivityCategory, &freq.Frequency); err != nil {
			return nil, err
		}
		results = append(results, freq)
	}
	return results, rows.Err()
}

// Counts reports row counts for the importer's guard.
func (r *Repository) Counts(ctx context.Context) (domain.RowCounts, error) {
	var counts domain.RowCounts
	err := r.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM activities), (SELECT COUNT(*) FROM scans)`,
	).Scan(&counts.Users, &counts.Activities, &counts.Scans)
	return counts, err
}

// ImportUsers applies the bulk dataset in one transaction. Any integrity
// violation rolls the whole batch back.
func (r *Repository) ImportUsers(ctx context.Context, batch []domain.ImportUser) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	for _, record := range batch {
		var userID int64
		now := time.Now().UTC()

		lookupErr := tx.QueryRow(ctx, `SELECT id FROM users WHERE email=$1`, record.Email).Scan(&userID)
		switch {
		case lookupErr == nil:
			if _, err = tx.Exec(ctx,
				`UPDATE users SET name=$2, phone=$3, badge_code=$4, updated_at=$5 WHERE id=$1`,
				userID, record.Name, record.Phone, record.BadgeCode, now); err != nil {
				return err
			}
		case errors.Is(lookupErr, pgx.ErrNoRows):
			if err = tx.QueryRow(ctx,
				`INSERT INTO users (email, name, phone, badge_code, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				record.Email, record.Name, record.Phone, record.BadgeCode, now).Scan(&userID); err != nil {
				return err
			}
		default:
			err = lookupErr
			return err
		}

		for _, scan := range record.Scans {
			if _, err = tx.Exec(ctx,
				`INSERT INTO activities (activity_name, activity_category) VALUES ($1, $2)
                 ON CONFLICT (activity_name) DO NOTHING`,
				scan.ActivityName, scan.ActivityCategory); err != nil {
				return err
			}
			if _, err = tx.Exec(ctx,
				`INSERT INTO scans (user_id, activity_name, scanned_at) VALUES ($1, $2, $3)`,
				userID, scan.ActivityName, scan.ScannedAt); err != nil {
				return err
			}
		}

		// Second bump so updated_at reflects scan processing, not just the
		// field update.
		if _, err = tx.Exec(ctx, `UPDATE users SET updated_at=$2 WHERE id=$1`, userID, time.Now().UTC()); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
