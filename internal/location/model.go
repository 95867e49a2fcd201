package location

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category selects which kind of point of interest to search for.
type Category string

const (
	CategoryFuel   Category = "gas_station"
	CategoryRepair Category = "car_repair"
)

// MaxResults caps every nearby search.
const MaxResults = 3

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a nearby result ready to show to a driver.
type Place struct {
	Name       string `json:"name"`
	DistanceKM int    `json:"distance_km"`
	MapLink    string `json:"link"`
	FuelPrices string `json:"fuel_prices,omitempty"`
}

// RawPlace is a provider record before formatting.
type RawPlace struct {
	DisplayName      string
	FormattedAddress string
	DistanceMeters   int
	FuelPrices       []FuelPrice
}

// FuelPrice is one fuel type with a google.type.Money style price.
type FuelPrice struct {
	Type         string
	CurrencyCode string
	Units        json.Number
	Nanos        int64
}

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// Amount is units plus nanos as a decimal number.
func (p FuelPrice) Amount() float64 {
	units, _ := p.Units.Float64()
	return units + float64(p.Nanos)/1e9
}

func (p FuelPrice) String() string {
	if sym, ok := currencySymbols[p.CurrencyCode]; ok {
		return fmt.Sprintf("%s: %.3f%s", p.Type, p.Amount(), sym)
	}
	return strings.TrimSpace(fmt.Sprintf("%s: %.3f %s", p.Type, p.Amount(), p.CurrencyCode))
}

// FormatFuelPrices renders prices as a comma-joined "TYPE: price" list.
func FormatFuelPrices(prices []FuelPrice) string {
	parts := make([]string, 0, len(prices))
	for _, p := range prices {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ", ")
}
