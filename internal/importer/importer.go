// Package importer loads the bulk attendee dataset into an empty store.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"example.com/checkin/internal/domain"
	"example.com/checkin/internal/observability"
)

// ErrInvalidDataset marks import failures caused by the dataset itself:
// unreadable file, malformed JSON, or records missing required fields.
var ErrInvalidDataset = errors.New("invalid dataset")

// Loader performs the one-time bulk import.
type Loader struct {
	repo domain.Repository
}

// New constructs a Loader.
func New(repo domain.Repository) *Loader {
	return &Loader{repo: repo}
}

type userRecord struct {
	Email     *string      `json:"email"`
	Name      *string      `json:"name"`
	Phone     *string      `json:"phone"`
	BadgeCode *string      `json:"badge_code"`
	Scans     []scanRecord `json:"scans"`
}

type scanRecord struct {
	ActivityName     *string `json:"activity_name"`
	ActivityCategory *string `json:"activity_category"`
	ScannedAt        *string `json:"scanned_at"`
}

// LoadFile reads the JSON dataset at path and imports it. A store that
// already holds rows is left untouched: the guard makes repeated startups
// idempotent by skipping, not by merging.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	counts, err := l.repo.Counts(ctx)
	if err != nil {
		return err
	}
	if counts.Users > 0 || counts.Activities > 0 || counts.Scans > 0 {
		log.Printf("store already populated (%d users, %d activities, %d scans), skipping import",
			counts.Users, counts.Activities, counts.Scans)
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrInvalidDataset, path, err)
	}

	var records []userRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidDataset, path, err)
	}

	batch, err := buildBatch(records)
	if err != nil {
		return err
	}

	if err := l.repo.ImportUsers(ctx, batch); err != nil {
		return err
	}

	var scans int
	for _, record := range batch {
		scans += len(record.Scans)
	}
	observability.RecordImportCompleted(len(batch), scans)
	log.Printf("imported %d users and %d scans from %s", len(batch), scans, path)
	return nil
}

func buildBatch(records []userRecord) ([]domain.ImportUser, error) {
	batch := make([]domain.ImportUser, 0, len(records))
	for i, record := range records {
		if record.Email == nil || *record.Email == "" {
			return nil, fmt.Errorf("%w: record %d: missing email", ErrInvalidDataset, i)
		}
		if record.Name == nil || *record.Name == "" {
			return nil, fmt.Errorf("%w: record %d: missing name", ErrInvalidDataset, i)
		}

		user := domain.ImportUser{
			Email:     *record.Email,
			Name:      *record.Name,
			BadgeCode: domain.NormalizeBadgeCode(record.BadgeCode),
		}
		if record.Phone != nil {
			user.Phone = *record.Phone
		}

		for j, scan := range record.Scans {
			if scan.ActivityName == nil || *scan.ActivityName == "" {
				return nil, fmt.Errorf("%w: record %d scan %d: missing activity_name", ErrInvalidDataset, i, j)
			}
			if scan.ActivityCategory == nil || *scan.ActivityCategory == "" {
				return nil, fmt.Errorf("%w: record %d scan %d: missing activity_category", ErrInvalidDataset, i, j)
			}
			if scan.ScannedAt == nil || *scan.ScannedAt == "" {
				return nil, fmt.Errorf("%w: record %d scan %d: missing scanned_at", ErrInvalidDataset, i, j)
			}
			scannedAt, err := parseTimestamp(*scan.ScannedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d scan %d: %v", ErrInvalidDataset, i, j, err)
			}
			user.Scans = append(user.Scans, domain.ImportScan{
				ActivityName:     *scan.ActivityName,
				ActivityCategory: *scan.ActivityCategory,
				ScannedAt:        scannedAt,
			})
		}
		batch = append(batch, user)
	}
	return batch, nil
}

// parseTimestamp accepts RFC 3339 timestamps and the zone-less ISO-8601
// variant the dataset ships with; the latter is read as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05.999999999", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scanned_at %q", value)
	}
	return ts.UTC(), nil
}
