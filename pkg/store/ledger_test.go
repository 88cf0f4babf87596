package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_FiredReminders(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordFired(ctx, "2026-03-01", "CityA", models.Maghrib, now))
	require.NoError(t, l.RecordFired(ctx, "2026-03-01", "CityA", models.Maghrib, now.Add(time.Minute)))
	require.NoError(t, l.RecordFired(ctx, "2026-03-01", "CityA", models.Fajr, now.Add(-12*time.Hour)))
	require.NoError(t, l.RecordFired(ctx, "2026-03-01", "CityB", models.Isha, now))

	fired, err := l.FiredPrayers(ctx, "2026-03-01", "CityA")
	require.NoError(t, err)
	assert.Equal(t, []string{models.Fajr, models.Maghrib}, fired)

	none, err := l.FiredPrayers(ctx, "2026-03-02", "CityA")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_CachedSchedules(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	_, err := l.LoadSchedule(ctx, "2026-03-01", "CityA")
	require.ErrorIs(t, err, models.ErrNotFound)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := []models.PrayerTime{
		{Name: models.Fajr, Time: "05:10", DateTime: day.Add(5*time.Hour + 10*time.Minute)},
		{Name: models.Isha, Time: "19:20", DateTime: day.Add(19*time.Hour + 20*time.Minute)},
	}
	require.NoError(t, l.SaveSchedule(ctx, "2026-03-01", "CityA", times))
	require.NoError(t, l.SaveSchedule(ctx, "2026-03-01", "CityA", times[:1]))

	got, err := l.LoadSchedule(ctx, "2026-03-01", "CityA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.Fajr, got[0].Name)
	assert.True(t, got[0].DateTime.Equal(times[0].DateTime))
}

func TestLedger_Prune(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	now := time.Now()

	require.NoError(t, l.RecordFired(ctx, "2026-02-20", "CityA", models.Asr, now))
	require.NoError(t, l.RecordFired(ctx, "2026-03-01", "CityA", models.Asr, now))
	require.NoError(t, l.SaveSchedule(ctx, "2026-02-20", "CityA", nil))

	require.NoError(t, l.Prune(ctx, "2026-02-25"))

	old, err := l.FiredPrayers(ctx, "2026-02-20", "CityA")
	require.NoError(t, err)
	assert.Empty(t, old)
	kept, err := l.FiredPrayers(ctx, "2026-03-01", "CityA")
	require.NoError(t, err)
	assert.Equal(t, []string{models.Asr}, kept)
	_, err = l.LoadSchedule(ctx, "2026-02-20", "CityA")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
