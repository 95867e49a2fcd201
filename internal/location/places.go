package location

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haulbot/dispatcher/internal/config"
)

const (
	searchRadiusMeters = 5000.0
	placesFieldMask    = "places.displayName,places.formattedAddress,places.fuelOptions,routingSummaries.legs.distanceMeters"
)

// PlacesClient searches for points of interest around a coordinate with a
// routing distance measured from that coordinate.
type PlacesClient interface {
	SearchNearby(ctx context.Context, center Coordinates, category Category) ([]RawPlace, error)
}

// GooglePlaces calls the Places API (New) searchNearby method.
type GooglePlaces struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewGooglePlaces(cfg config.GoogleConfig, client *http.Client) *GooglePlaces {
	if client == nil {
		client = http.DefaultClient
	}
	return &GooglePlaces{url: cfg.PlacesURL, apiKey: cfg.MapsAPIKey, http: client}
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchNearbyRequest struct {
	IncludedTypes       []string `json:"includedTypes"`
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
	RoutingParameters struct {
		Origin            latLng `json:"origin"`
		RoutingPreference string `json:"routingPreference"`
	} `json:"routingParameters"`
}

type searchNearbyResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		FuelOptions      *struct {
			FuelPrices []struct {
				Type  string `json:"type"`
				Price struct {
					CurrencyCode string      `json:"currencyCode"`
					Units        json.Number `json:"units"`
					Nanos        int64       `json:"nanos"`
				} `json:"price"`
			} `json:"fuelPrices"`
		} `json:"fuelOptions"`
	} `json:"places"`
	RoutingSummaries []struct {
		Legs []struct {
			DistanceMeters int `json:"distanceMeters"`
		} `json:"legs"`
	} `json:"routingSummaries"`
}

func (g *GooglePlaces) SearchNearby(ctx context.Context, center Coordinates, category Category) ([]RawPlace, error) {
	var payload searchNearbyRequest
	payload.IncludedTypes = []string{string(category)}
	payload.LocationRestriction.Circle.Center = latLng(center)
	payload.LocationRestriction.Circle.Radius = searchRadiusMeters
	payload.RoutingParameters.Origin = latLng(center)
	payload.RoutingParameters.RoutingPreference = "TRAFFIC_AWARE"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal places payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create places request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)
	req.Header.Set("X-Goog-FieldMask", placesFieldMask)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("places search: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result searchNearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode places response: %w", err)
	}

	out := make([]RawPlace, 0, len(result.Places))
	for i, p := range result.Places {
		rp := RawPlace{
			DisplayName:      p.DisplayName.Text,
			FormattedAddress: p.FormattedAddress,
		}
		if i < len(result.RoutingSummaries) && len(result.RoutingSummaries[i].Legs) > 0 {
			rp.DistanceMeters = result.RoutingSummaries[i].Legs[0].DistanceMeters
		}
		if p.FuelOptions != nil {
			for _, fp := range p.FuelOptions.FuelPrices {
				rp.FuelPrices = append(rp.FuelPrices, FuelPrice{
					Type:         fp.Type,
					CurrencyCode: fp.Price.CurrencyCode,
					Units:        fp.Price.Units,
					Nanos:        fp.Price.Nanos,
				})
			}
		}
		out = append(out, rp)
	}
	return out, nil
}
