package location

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Service resolves an anchor place and lists nearby points of interest.
type Service struct {
	geocoder Geocoder
	places   PlacesClient
	timeout  time.Duration
	logger   *slog.Logger
}

func NewService(geocoder Geocoder, places PlacesClient, timeout time.Duration) *Service {
	return &Service{
		geocoder: geocoder,
		places:   places,
		timeout:  timeout,
		logger:   slog.Default().With("component", "location"),
	}
}

// FindNearby returns at most MaxResults places of category around anchor,
// in provider order. Any lookup failure yields an empty result.
func (s *Service) FindNearby(ctx context.Context, category Category, anchor string) []Place {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	center, err := s.geocoder.Geocode(ctx, anchor)
	if err != nil {
		s.logger.Warn("geocoding failed", "error", err, "anchor", anchor)
		return []Place{}
	}
	if center == nil {
		s.logger.Info("anchor not resolvable", "anchor", anchor)
		return []Place{}
	}

	raw, err := s.places.SearchNearby(ctx, *center, category)
	if err != nil {
		s.logger.Warn("places search failed", "error", err, "anchor", anchor, "category", category)
		return []Place{}
	}

	if len(raw) > MaxResults {
		raw = raw[:MaxResults]
	}

	out := make([]Place, 0, len(raw))
	for _, rp := range raw {
		name := placeName(rp)
		out = append(out, Place{
			Name:       name,
			DistanceKM: int(math.Ceil(float64(rp.DistanceMeters) / 1000)),
			MapLink:    BuildMapLink(anchor, name),
			FuelPrices: FormatFuelPrices(rp.FuelPrices),
		})
	}
	return out
}

// placeName is the display name plus the leading token of the address,
// usually enough to tell two branches of the same chain apart.
func placeName(rp RawPlace) string {
	fields := strings.Fields(rp.FormattedAddress)
	if len(fields) == 0 {
		return rp.DisplayName
	}
	return rp.DisplayName + " " + fields[0]
}
