package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/checkin/internal/domain"
)

func strptr(s string) *string { return &s }

func int64ptr(v int64) *int64 { return &v }

func TestActivityFrequencies(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	user := repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, _, err := repo.CreateScan(ctx, user.ID, "Activity A", "workshop", now)
		require.NoError(t, err)
	}
	repo.SeedActivity("Activity B", "workshop")
	_, _, err := repo.CreateScan(ctx, user.ID, "Activity C", "meal", now)
	require.NoError(t, err)

	all, err := repo.ActivityFrequencies(ctx, domain.FrequencyFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3, "zero-scan activities stay visible by default")

	atLeastOne, err := repo.ActivityFrequencies(ctx, domain.FrequencyFilter{MinFrequency: 1})
	require.NoError(t, err)
	require.Len(t, atLeastOne, 2)
	require.Equal(t, "Activity A", atLeastOne[0].ActivityName)
	require.EqualValues(t, 3, atLeastOne[0].Frequency)
	require.Equal(t, "Activity C", atLeastOne[1].ActivityName)

	bounded, err := repo.ActivityFrequencies(ctx, domain.FrequencyFilter{MinFrequency: 2, MaxFrequency: int64ptr(3)})
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	require.Equal(t, "Activity A", bounded[0].ActivityName)

	// The category filter applies before grouping, the bounds after.
	workshops, err := repo.ActivityFrequencies(ctx, domain.FrequencyFilter{Category: "workshop"})
	require.NoError(t, err)
	require.Len(t, workshops, 2)

	capped, err := repo.ActivityFrequencies(ctx, domain.FrequencyFilter{MaxFrequency: int64ptr(0)})
	require.NoError(t, err)
	require.Len(t, capped, 1)
	require.Equal(t, "Activity B", capped[0].ActivityName)
}

func TestCreateScanFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	user := repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))

	_, category, err := repo.CreateScan(ctx, user.ID, "Lunch", "meal", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, "meal", category)

	_, category, err = repo.CreateScan(ctx, user.ID, "Lunch", "food", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, "meal", category, "existing category must be retained")
}

func TestUpdateUserUniquenessBackstop(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	grace := repo.SeedUser("grace@example.com", "Grace", "555-0101", strptr("badge-2"))

	grace.Email = "ada@example.com"
	_, err := repo.UpdateUser(ctx, grace, time.Now().UTC())
	require.ErrorIs(t, err, ErrDuplicateEmail)

	stored, err := repo.GetUserByID(ctx, grace.ID)
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", stored.Email)

	grace.Email = "grace@example.com"
	grace.BadgeCode = strptr("badge-1")
	_, err = repo.UpdateUser(ctx, grace, time.Now().UTC())
	require.ErrorIs(t, err, ErrDuplicateBadge)
}

func TestImportUsersAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	badge := "badge-1"
	batch := []domain.ImportUser{
		{Email: "ada@example.com", Name: "Ada", Phone: "555-0100", BadgeCode: &badge, Scans: []domain.ImportScan{
			{ActivityName: "Opening Keynote", ActivityCategory: "talk", ScannedAt: time.Now().UTC()},
		}},
		// Same badge on a different email trips the uniqueness backstop.
		{Email: "grace@example.com", Name: "Grace", Phone: "555-0101", BadgeCode: &badge},
	}

	err := repo.ImportUsers(ctx, batch)
	require.ErrorIs(t, err, ErrDuplicateBadge)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Users, "a failed batch must leave the store untouched")
	require.Zero(t, counts.Activities)
	require.Zero(t, counts.Scans)
}

func TestScansForUserJoinsCategory(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	user := repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	other := repo.SeedUser("grace@example.com", "Grace", "555-0101", strptr("badge-2"))

	at := time.Now().UTC()
	_, _, err := repo.CreateScan(ctx, user.ID, "Opening Keynote", "talk", at)
	require.NoError(t, err)
	_, _, err = repo.CreateScan(ctx, other.ID, "Lunch", "meal", at)
	require.NoError(t, err)

	scans, err := repo.ScansForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	require.Equal(t, "Opening Keynote", scans[0].ActivityName)
	require.Equal(t, "talk", scans[0].ActivityCategory)
}
