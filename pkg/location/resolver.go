// Package location detects where this machine is.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/rs/zerolog"
)

// Resolver returns a best-effort guess of the user's city and timezone
type Resolver interface {
	Resolve(ctx context.Context) (models.SystemInfo, error)
}

// GeoIPResolver asks an ipapi-compatible JSON endpoint and falls back to the
// system timezone when the lookup fails
type GeoIPResolver struct {
	url    string
	client *http.Client
	log    zerolog.Logger
	zone   func() string
}

// NewGeoIPResolver creates a resolver for the endpoint at url. An empty url
// only reports the system timezone.
func NewGeoIPResolver(url string, client *http.Client, logger zerolog.Logger) *GeoIPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeoIPResolver{url: url, client: client, log: logger, zone: SystemTimezone}
}

type geoResponse struct {
	City        string `json:"city"`
	Region      string `json:"region"`
	CountryName string `json:"country_name"`
	Timezone    string `json:"timezone"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Resolve implements Resolver. It only fails if neither the lookup nor the
// system timezone yields anything.
func (r *GeoIPResolver) Resolve(ctx context.Context) (models.SystemInfo, error) {
	info := models.SystemInfo{Timezone: r.zone()}

	geo, err := r.lookup(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("Geo-IP lookup failed, using system timezone")
		if info.Timezone == "" {
			return models.SystemInfo{}, err
		}
		return info, nil
	}

	if geo.City != "" {
		info.Location = geo.City
	} else if geo.Region != "" {
		info.Location = geo.Region
	} else {
		info.Location = geo.CountryName
	}
	if geo.Timezone != "" {
		info.Timezone = geo.Timezone
	}
	return info, nil
}

func (r *GeoIPResolver) lookup(ctx context.Context) (geoResponse, error) {
	if r.url == "" {
		return geoResponse{}, fmt.Errorf("%w: geo-ip lookup disabled", models.ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return geoResponse{}, fmt.Errorf("%w: build request: %v", models.ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return geoResponse{}, fmt.Errorf("%w: geo-ip request: %v", models.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geoResponse{}, fmt.Errorf("%w: geo-ip status %d", models.ErrProvider, resp.StatusCode)
	}

	var geo geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&geo); err != nil {
		return geoResponse{}, fmt.Errorf("%w: decode geo-ip response: %v", models.ErrProvider, err)
	}
	if geo.Error {
		return geoResponse{}, fmt.Errorf("%w: geo-ip: %s", models.ErrProvider, geo.Reason)
	}
	if geo.City == "" && geo.Region == "" && geo.CountryName == "" {
		return geoResponse{}, fmt.Errorf("%w: geo-ip returned no location", models.ErrNotFound)
	}
	return geo, nil
}

// SystemTimezone returns the IANA name of the local zone, or the zone
// abbreviation when the name is unknown
func SystemTimezone() string {
	if tz := strings.TrimSpace(os.Getenv("TZ")); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
	}
	name, _ := time.Now().Zone()
	return name
}
