package daylight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// ErrNoSunEvents is returned when the sun does not rise or set on the day
// (polar day or night).
var ErrNoSunEvents = errors.New("no sunrise or sunset at this location today")

// ErrLocate is returned when the geolocation lookup fails.
var ErrLocate = errors.New("failed to determine location")

// Source provides the current time and the sun events of the current day.
type Source interface {
	Times(ctx context.Context) (Window, error)
}

// Locator resolves the coordinates used for sun calculations.
type Locator interface {
	Locate(ctx context.Context) (lat, lng float64, err error)
}

// StaticLocator returns fixed coordinates.
type StaticLocator struct {
	Latitude  float64
	Longitude float64
}

// Locate implements Locator.
func (l StaticLocator) Locate(context.Context) (float64, float64, error) {
	return l.Latitude, l.Longitude, nil
}

// DefaultGeoIPURL answers with {"status":"success","lat":..,"lon":..}.
const DefaultGeoIPURL = "http://ip-api.com/json/?fields=status,message,lat,lon"

// IPLocator looks the coordinates up from the public IP address.
type IPLocator struct {
	URL    string
	Client *http.Client
}

// Locate implements Locator.
func (l IPLocator) Locate(ctx context.Context) (float64, float64, error) {
	url := l.URL
	if url == "" {
		url = DefaultGeoIPURL
	}
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrLocate, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrLocate, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("%w: unexpected status %s", ErrLocate, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrLocate, err)
	}

	res := gjson.GetManyBytes(body, "status", "message", "lat", "lon")
	if status := res[0].String(); status != "success" {
		return 0, 0, fmt.Errorf("%w: status %q: %s", ErrLocate, status, res[1].String())
	}
	if !res[2].Exists() || !res[3].Exists() {
		return 0, 0, fmt.Errorf("%w: response has no coordinates", ErrLocate)
	}

	lat, lng := res[2].Float(), res[3].Float()
	log.Debug().Float64("lat", lat).Float64("lng", lng).Msg("Located via IP address")
	return lat, lng, nil
}

// SunSource computes sunrise and sunset with go-sunrise.
type SunSource struct {
	Locator Locator
	Now     func() time.Time
}

// Times implements Source. DeltaMinutes of the result is left at zero.
func (s SunSource) Times(ctx context.Context) (Window, error) {
	lat, lng, err := s.Locator.Locate(ctx)
	if err != nil {
		return Window{}, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	current := now().UTC()

	rise, set := SunEvents(lat, lng, current)
	if rise.IsZero() || set.IsZero() {
		return Window{}, ErrNoSunEvents
	}

	return Window{Now: current, Sunrise: rise, Sunset: set}, nil
}

// SunEvents returns the UTC sunrise and sunset of the local solar day that
// contains at. The UTC date alone picks the wrong day far from Greenwich.
func SunEvents(lat, lng float64, at time.Time) (time.Time, time.Time) {
	offset := time.Duration(math.Round(lng / 15 * float64(time.Hour)))
	local := at.UTC().Add(offset)
	rise, set := sunrise.SunriseSunset(lat, lng, local.Year(), local.Month(), local.Day())
	return rise.UTC(), set.UTC()
}
