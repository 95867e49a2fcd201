package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haulbot/dispatcher/internal/audit"
	"github.com/haulbot/dispatcher/internal/location"
	"github.com/haulbot/dispatcher/internal/session"
)

func (d *Dispatcher) updateUserPreference(ctx context.Context, userID string, args map[string]string) (Result, error) {
	lang, changed, err := d.prefs.Set(ctx, userID, args["language"])
	if err != nil {
		return Result{}, err
	}

	text := "Your preferred language is set to " + lang.Name()
	if !changed {
		return Result{Text: text, NoOp: true}, nil
	}

	d.note(ctx, userID, "Updated user preference")
	d.auditor.Record(ctx, userID, audit.EventPreferenceUpdated, audit.SeverityInfo, "language="+string(lang))
	return Result{Text: text}, nil
}

func (d *Dispatcher) getRoute(ctx context.Context, userID string, args map[string]string) (Result, error) {
	origin, destination := args["origin"], args["destination"]

	var b strings.Builder
	b.WriteString("Route sent!\n\n")
	fmt.Fprintf(&b, "PickUp: %s (9:00 AM)\n\n", origin)
	fmt.Fprintf(&b, "Delivery: %s (5:00 PM)\n\n", destination)
	b.WriteString(location.BuildMapLink(origin, destination))

	stops := d.places.FindNearby(ctx, location.CategoryFuel, d.corridor.Origin)
	if len(stops) > 0 {
		stop := stops[0]
		fmt.Fprintf(&b, "\n\nRecommended Fuel Stop: %dKMs (%s)", stop.DistanceKM, stop.Name)
		fmt.Fprintf(&b, "\n\nRoute: %s", stop.MapLink)
	}

	return Result{Text: b.String()}, nil
}

func (d *Dispatcher) getGasStations(ctx context.Context, userID string, args map[string]string) (Result, error) {
	stations := d.places.FindNearby(ctx, location.CategoryFuel, args["origin"])
	d.note(ctx, userID, fmt.Sprintf("Gas station found: %s, Share the details with user", summarize(stations)))
	return Result{Text: formatPlaces(stations)}, nil
}

func (d *Dispatcher) getRepairStations(ctx context.Context, userID string, args map[string]string) (Result, error) {
	shops := d.places.FindNearby(ctx, location.CategoryRepair, args["origin"])
	d.note(ctx, userID, fmt.Sprintf("Repair shops found: %s, Share the details with user", summarize(shops)))
	return Result{Text: formatPlaces(shops)}, nil
}

// note appends a developer entry. History failures do not fail the tool.
func (d *Dispatcher) note(ctx context.Context, userID, content string) {
	if err := d.history.Append(ctx, userID, session.RoleDeveloper, content); err != nil {
		d.logger.Warn("writing developer note", "error", err, "user", userID)
	}
}

func formatPlaces(places []location.Place) string {
	var b strings.Builder
	for _, p := range places {
		fmt.Fprintf(&b, "Name: %s | %dKms\n%s\n\n", p.Name, p.DistanceKM, p.MapLink)
	}
	return b.String()
}

func summarize(places []location.Place) string {
	data, err := json.Marshal(places)
	if err != nil {
		return "[]"
	}
	return string(data)
}
