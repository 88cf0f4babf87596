// Package prayertimes fetches a day's prayer schedule for a location.
package prayertimes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
)

// Provider returns the five prayer times of day for location
type Provider interface {
	Fetch(ctx context.Context, location string, day time.Time) ([]models.PrayerTime, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, location string, day time.Time) ([]models.PrayerTime, error)

func (f ProviderFunc) Fetch(ctx context.Context, location string, day time.Time) ([]models.PrayerTime, error) {
	return f(ctx, location, day)
}

// parseClock turns an "HH:MM" value, optionally followed by a zone
// abbreviation like "05:12 (CST)", into a PrayerTime on day
func parseClock(name, value string, day time.Time) (models.PrayerTime, error) {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ' '); i > 0 {
		value = value[:i]
	}

	clock, err := time.Parse("15:04", value)
	if err != nil {
		return models.PrayerTime{}, fmt.Errorf("invalid time %q for %s", value, name)
	}

	dt := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location())
	return models.PrayerTime{
		Name:     name,
		Time:     dt.Format("15:04"),
		DateTime: dt,
	}, nil
}
