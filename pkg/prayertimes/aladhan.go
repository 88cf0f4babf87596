package prayertimes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/rs/zerolog"
)

// AladhanOptions configures an AladhanProvider
type AladhanOptions struct {
	BaseURL string
	Method  int    // calculation method id
	Tune    string // comma separated minute offsets
	Client  *http.Client
	Logger  zerolog.Logger
}

// AladhanProvider fetches schedules from the Aladhan timingsByAddress API
type AladhanProvider struct {
	baseURL string
	method  int
	tune    string
	client  *http.Client
	log     zerolog.Logger
}

// NewAladhanProvider creates a provider for the given API endpoint
func NewAladhanProvider(opts AladhanOptions) *AladhanProvider {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &AladhanProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		method:  opts.Method,
		tune:    opts.Tune,
		client:  opts.Client,
		log:     opts.Logger,
	}
}

type aladhanResponse struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type aladhanData struct {
	Timings map[string]string `json:"timings"`
}

// Fetch implements Provider
func (p *AladhanProvider) Fetch(ctx context.Context, location string, day time.Time) ([]models.PrayerTime, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", models.ErrNotFound)
	}

	zone := timezoneFor(location, day)
	reqURL := p.requestURL(location, zone, day)
	p.log.Debug().Str("url", reqURL).Msg("Fetching prayer times")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch prayer times: %v", models.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", models.ErrProvider, err)
	}

	var envelope aladhanResponse
	decodeErr := json.Unmarshal(body, &envelope)

	// Aladhan answers 400 with a message in data when the address cannot be geocoded
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: location %q: %s", models.ErrNotFound, location, messageOf(envelope.Data))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", models.ErrProvider, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrProvider, decodeErr)
	}

	var data aladhanData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode timings: %v", models.ErrProvider, err)
	}

	// Timings are wall clock in the requested zone. A zone other than the
	// location itself was derived from day, so day's location already fits.
	clockDay := day
	if zone == location {
		if loc, err := time.LoadLocation(zone); err == nil {
			clockDay = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		}
	}

	times := make([]models.PrayerTime, 0, len(models.PrayerNames))
	for _, name := range models.PrayerNames {
		value, ok := data.Timings[name]
		if !ok {
			continue
		}
		pt, err := parseClock(name, value, clockDay)
		if err != nil {
			p.log.Warn().Err(err).Str("prayer", name).Msg("Skipping unparsable timing")
			continue
		}
		times = append(times, pt)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no prayer times for %q", models.ErrProvider, location)
	}
	return times, nil
}

func (p *AladhanProvider) requestURL(location, zone string, day time.Time) string {
	q := url.Values{}
	q.Set("address", location)
	q.Set("method", strconv.Itoa(p.method))
	q.Set("shafaq", "general")
	if p.tune != "" {
		q.Set("tune", p.tune)
	}
	q.Set("timezonestring", zone)
	q.Set("calendarMethod", "UAQ")

	return fmt.Sprintf("%s/v1/timingsByAddress/%s?%s", p.baseURL, day.Format("02-01-2006"), q.Encode())
}

func messageOf(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	return "not found"
}
