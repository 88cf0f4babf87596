package prayertimes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/emersion/go-ical"
	"github.com/rs/zerolog"
)

// ICalOptions configures an ICalProvider
type ICalOptions struct {
	// URL of the feed. A {location} placeholder is replaced with the query-escaped location.
	URL    string
	Client *http.Client
	Logger zerolog.Logger
}

// ICalProvider reads prayer times from an iCalendar feed whose events are
// named after the prayers, either one event per day or daily recurring events
type ICalProvider struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewICalProvider creates a provider for the feed at opts.URL
func NewICalProvider(opts ICalOptions) *ICalProvider {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &ICalProvider{url: opts.URL, client: opts.Client, log: opts.Logger}
}

// Fetch implements Provider
func (p *ICalProvider) Fetch(ctx context.Context, location string, day time.Time) ([]models.PrayerTime, error) {
	feedURL := strings.ReplaceAll(p.url, "{location}", url.QueryEscape(strings.TrimSpace(location)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrProvider, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: HTTP request failed: %v", models.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: no calendar for %q", models.ErrNotFound, location)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", models.ErrProvider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", models.ErrProvider, err)
	}

	times, err := parseFeed(string(body), day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProvider, err)
	}
	p.log.Debug().Int("count", len(times)).Str("location", location).Msg("Parsed prayer calendar")
	return times, nil
}

// parseFeed extracts the first occurrence of each prayer on day
func parseFeed(body string, day time.Time) ([]models.PrayerTime, error) {
	if err := validateICalFormat(body); err != nil {
		return nil, err
	}

	loc := day.Location()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	found := make(map[string]time.Time, len(models.PrayerNames))

	decoder := ical.NewDecoder(strings.NewReader(body))
	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			name := prayerFromSummary(comp)
			if name == "" {
				continue
			}
			normalizeComponentTimezones(comp)

			start, ok := occurrenceOn(comp, loc, dayStart, dayEnd)
			if !ok {
				continue
			}
			if prev, seen := found[name]; !seen || start.Before(prev) {
				found[name] = start
			}
		}
	}

	times := make([]models.PrayerTime, 0, len(found))
	for _, name := range models.PrayerNames {
		start, ok := found[name]
		if !ok {
			continue
		}
		// Clamp into the schedule day's zone
		local := start.In(loc)
		times = append(times, models.PrayerTime{Name: name, Time: local.Format("15:04"), DateTime: local})
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("no prayer events on %s", models.DateKey(day))
	}
	return times, nil
}

// occurrenceOn returns the event's start within [dayStart, dayEnd)
func occurrenceOn(comp *ical.Component, loc *time.Location, dayStart, dayEnd time.Time) (time.Time, bool) {
	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return time.Time{}, false
	}
	start, err := parseDateTimeProperty(prop, loc)
	if err != nil {
		return time.Time{}, false
	}

	if comp.Props.Get(ical.PropRecurrenceRule) != nil {
		set, err := comp.RecurrenceSet(loc)
		if err != nil || set == nil {
			return time.Time{}, false
		}
		occurrences := set.Between(dayStart, dayEnd, true)
		for _, t := range occurrences {
			if t.Before(dayEnd) {
				return t, true
			}
		}
		return time.Time{}, false
	}

	if start.Before(dayStart) || !start.Before(dayEnd) {
		return time.Time{}, false
	}
	return start, true
}

func prayerFromSummary(comp *ical.Component) string {
	prop := comp.Props.Get(ical.PropSummary)
	if prop == nil {
		return ""
	}
	summary := strings.ToLower(prop.Value)
	for _, name := range models.PrayerNames {
		if strings.Contains(summary, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func parseDateTimeProperty(prop *ical.Prop, loc *time.Location) (time.Time, error) {
	if t, err := prop.DateTime(loc); err == nil {
		return t, nil
	}

	formats := []string{
		"20060102T150405",
		"20060102T150405Z",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, prop.Value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime value: %s", prop.Value)
}

func validateICalFormat(body string) error {
	trimmed := strings.TrimSpace(body)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data - check if URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		preview := trimmed
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("invalid iCalendar format - expected BEGIN:VCALENDAR, got: %s", preview)
	}
	return nil
}

// Common Windows zone names seen in exported calendars
var windowsToIANA = map[string]string{
	"Arab Standard Time":        "Asia/Riyadh",
	"Arabian Standard Time":     "Asia/Dubai",
	"Egypt Standard Time":       "Africa/Cairo",
	"Pakistan Standard Time":    "Asia/Karachi",
	"India Standard Time":       "Asia/Kolkata",
	"SE Asia Standard Time":     "Asia/Jakarta",
	"Singapore Standard Time":   "Asia/Singapore",
	"Taipei Standard Time":      "Asia/Taipei",
	"China Standard Time":       "Asia/Shanghai",
	"Tokyo Standard Time":       "Asia/Tokyo",
	"Turkey Standard Time":      "Europe/Istanbul",
	"GMT Standard Time":         "Europe/London",
	"W. Europe Standard Time":   "Europe/Berlin",
	"Eastern Standard Time":     "America/New_York",
	"Central Standard Time":     "America/Chicago",
	"Pacific Standard Time":     "America/Los_Angeles",
	"AUS Eastern Standard Time": "Australia/Sydney",
}

// normalizeComponentTimezones rewrites Windows TZID parameters to IANA names
func normalizeComponentTimezones(comp *ical.Component) {
	for _, name := range []string{ical.PropDateTimeStart, ical.PropExceptionDates, ical.PropRecurrenceDates} {
		for i := range comp.Props[name] {
			prop := &comp.Props[name][i]
			if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
				if iana, ok := windowsToIANA[tzid]; ok {
					prop.Params.Set(ical.ParamTimezoneID, iana)
				}
			}
		}
	}
}
