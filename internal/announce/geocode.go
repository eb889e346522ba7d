// Package announce speaks a reverse-geocoded address into a running conversation.
package announce

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

	"golang.org/x/time/rate"

	"github.com/rbright/conversa/internal/version"
)

const (
	DefaultEndpoint = "https://nominatim.openstreetmap.org"

	// Nominatim's public instance allows one request per second.
	requestInterval = time.Second
	maxBodyBytes    = 1 << 20
)

// Geocoder resolves coordinates to a display address through a Nominatim API.
type Geocoder struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewGeocoder builds a geocoder; empty values use the public defaults.
func NewGeocoder(endpoint string, userAgent string, client *http.Client) *Geocoder {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Geocoder{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(requestInterval), 1),
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns the display name for lat/lon. An empty string with a nil
// error means the service found no matching address.
func (g *Geocoder) Reverse(ctx context.Context, lat float64, lon float64) (string, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return "", err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for geocode slot: %w", err)
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode request: unexpected status %s", resp.Status)
	}

	var payload reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode geocode response: %w", err)
	}
	return strings.TrimSpace(payload.DisplayName), nil
}

// ValidateCoordinates rejects values outside the WGS84 range.
func ValidateCoordinates(lat float64, lon float64) error {
	if lat != lat || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon != lon || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}
