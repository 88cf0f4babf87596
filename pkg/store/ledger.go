package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var ddl embed.FS

// Ledger records fired reminders and fetched schedules so a restart neither
// repeats a reminder nor loses today's schedule during a provider outage
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (and creates if needed) the ledger database at path
func OpenLedger(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create ledger dir: %v", models.ErrIO, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger: %v", models.ErrIO, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate ledger: %v", models.ErrIO, err)
	}
	return &Ledger{db: db}, nil
}

func migrate(db *sql.DB) error {
	b, err := ddl.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}

// Close releases the database handle
func (l *Ledger) Close() error {
	return l.db.Close()
}

// ---------- fired reminders -------------------------------------------------

// RecordFired stores that prayer was reminded on date for location. Repeats are ignored.
func (l *Ledger) RecordFired(ctx context.Context, date, location, prayer string, at time.Time) error {
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO fired_reminders (schedule_date, location, prayer, fired_at)
        VALUES (?,?,?,?)
        ON CONFLICT(schedule_date, location, prayer) DO NOTHING
    `, date, location, prayer, at.Unix())
	if err != nil {
		return fmt.Errorf("%w: record fired: %v", models.ErrIO, err)
	}
	return nil
}

// FiredPrayers lists the prayers already reminded on date for location
func (l *Ledger) FiredPrayers(ctx context.Context, date, location string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
        SELECT prayer FROM fired_reminders
        WHERE schedule_date=? AND location=?
        ORDER BY fired_at`, date, location)
	if err != nil {
		return nil, fmt.Errorf("%w: list fired: %v", models.ErrIO, err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var prayer string
		if err := rows.Scan(&prayer); err != nil {
			return nil, fmt.Errorf("%w: scan fired: %v", models.ErrIO, err)
		}
		res = append(res, prayer)
	}
	return res, rows.Err()
}

// ---------- cached schedules ------------------------------------------------

// SaveSchedule caches a fetched schedule for date and location
func (l *Ledger) SaveSchedule(ctx context.Context, date, location string, times []models.PrayerTime) error {
	payload, err := json.Marshal(times)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx, `
        INSERT INTO cached_schedules (schedule_date, location, payload, fetched_at)
        VALUES (?,?,?,?)
        ON CONFLICT(schedule_date, location) DO UPDATE SET payload=excluded.payload,
            fetched_at=excluded.fetched_at
    `, date, location, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: save schedule: %v", models.ErrIO, err)
	}
	return nil
}

// LoadSchedule returns the cached schedule for date and location, or models.ErrNotFound
func (l *Ledger) LoadSchedule(ctx context.Context, date, location string) ([]models.PrayerTime, error) {
	var payload string
	err := l.db.QueryRowContext(ctx, `
        SELECT payload FROM cached_schedules
        WHERE schedule_date=? AND location=?`, date, location,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load schedule: %v", models.ErrIO, err)
	}

	var times []models.PrayerTime
	if err := json.Unmarshal([]byte(payload), &times); err != nil {
		return nil, fmt.Errorf("%w: decode schedule: %v", models.ErrIO, err)
	}
	return times, nil
}

// Prune drops rows for dates before the given date key
func (l *Ledger) Prune(ctx context.Context, before string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, tbl := range []string{"fired_reminders", "cached_schedules"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE schedule_date < ?", tbl),
			before,
		); err != nil {
			return fmt.Errorf("%w: prune %s: %v", models.ErrIO, tbl, err)
		}
	}
	return tx.Commit()
}
