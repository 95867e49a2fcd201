package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/haulbot/dispatcher/internal/config"
)

// Geocoder resolves a free-text place name. It returns nil, nil when the
// name cannot be resolved.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Coordinates, error)
}

// Nominatim geocodes against an OpenStreetMap Nominatim search endpoint.
type Nominatim struct {
	url       string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

func NewNominatim(cfg config.GeocoderConfig, client *http.Client) *Nominatim {
	if client == nil {
		client = http.DefaultClient
	}
	return &Nominatim{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		http:      client,
		logger:    slog.Default().With("component", "location.nominatim"),
	}
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (*Coordinates, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create geocode request: %w", err)
	}
	// Nominatim's usage policy rejects requests without an identifying agent.
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode %q: status %d", query, resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		n.logger.Debug("no geocode match", "query", query)
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}
	return &Coordinates{Latitude: lat, Longitude: lon}, nil
}
