package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulbot/dispatcher/internal/audit"
	"github.com/haulbot/dispatcher/internal/database"
	"github.com/haulbot/dispatcher/internal/location"
	"github.com/haulbot/dispatcher/internal/preference"
	"github.com/haulbot/dispatcher/internal/session"
)

const driver = "whatsapp:+4917612345678"

type fakePlaces struct {
	results map[location.Category][]location.Place
	anchors []string
}

func (f *fakePlaces) FindNearby(_ context.Context, c location.Category, anchor string) []location.Place {
	f.anchors = append(f.anchors, anchor)
	if r, ok := f.results[c]; ok {
		return r
	}
	return []location.Place{}
}

type auditEntry struct {
	user, eventType, details string
}

type fakeAuditor struct {
	entries []auditEntry
}

func (f *fakeAuditor) Record(_ context.Context, userID, eventType, _, details string) {
	f.entries = append(f.entries, auditEntry{userID, eventType, details})
}

func (f *fakeAuditor) count(eventType string) int {
	n := 0
	for _, e := range f.entries {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	dispatcher *Dispatcher
	prefs      *preference.Service
	history    *session.Store
	places     *fakePlaces
	auditor    *fakeAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenBolt(filepath.Join(t.TempDir(), "tools.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		prefs:   preference.NewService(preference.NewBoltRepository(db)),
		history: session.NewStore(session.NewBoltRepository(db), nil),
		places:  &fakePlaces{results: map[location.Category][]location.Place{}},
		auditor: &fakeAuditor{},
	}
	f.dispatcher = NewDispatcher(f.prefs, f.history, f.places, f.auditor, Corridor{Origin: "Berlin", Destination: "Vienna"})
	return f
}

func (f *fixture) notes(t *testing.T) []string {
	t.Helper()
	msgs, err := f.history.List(context.Background(), driver)
	require.NoError(t, err)
	var out []string
	for _, m := range msgs {
		require.Equal(t, session.RoleDeveloper, m.Role)
		out = append(out, m.Content)
	}
	return out
}

func TestUpdateUserPreference_ChangesLanguage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.dispatcher.Dispatch(ctx, driver, Invocation{Name: UpdateUserPreference, Arguments: map[string]string{"language": "es"}})
	require.NoError(t, err)
	assert.Equal(t, "Your preferred language is set to spanish", res.Text)
	assert.False(t, res.NoOp)

	lang, err := f.prefs.Language(ctx, driver)
	require.NoError(t, err)
	assert.Equal(t, preference.Spanish, lang)
	assert.Equal(t, []string{"Updated user preference"}, f.notes(t))
	assert.Equal(t, 1, f.auditor.count(audit.EventPreferenceUpdated))
}

func TestUpdateUserPreference_SameLanguageIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := Invocation{Name: UpdateUserPreference, Arguments: map[string]string{"language": "fr"}}

	_, err := f.dispatcher.Dispatch(ctx, driver, inv)
	require.NoError(t, err)

	res, err := f.dispatcher.Dispatch(ctx, driver, inv)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, "Your preferred language is set to french", res.Text)

	assert.Len(t, f.notes(t), 1, "no second developer note")
	assert.Equal(t, 1, f.auditor.count(audit.EventPreferenceUpdated))
}

func TestUpdateUserPreference_InvalidLanguage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dispatcher.Dispatch(ctx, driver, Invocation{Name: UpdateUserPreference, Arguments: map[string]string{"language": "xx"}})
	assert.ErrorIs(t, err, preference.ErrInvalidLanguage)

	lang, err := f.prefs.Language(ctx, driver)
	require.NoError(t, err)
	assert.Empty(t, lang)
	assert.Empty(t, f.notes(t))
	assert.Empty(t, f.auditor.entries)
}

func TestDispatch_MissingArgument(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Dispatch(context.Background(), driver, Invocation{Name: GetRoute, Arguments: map[string]string{"origin": "Berlin"}})
	assert.ErrorIs(t, err, ErrMissingArgument)
	assert.Contains(t, err.Error(), "destination")

	_, err = f.dispatcher.Dispatch(context.Background(), driver, Invocation{Name: UpdateUserPreference})
	assert.ErrorIs(t, err, ErrMissingArgument)
}

func TestDispatch_UnknownTool(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), driver, Invocation{Name: "book_hotel"})
	require.NoError(t, err)
	assert.Equal(t, FallbackText, res.Text)
	assert.Empty(t, f.auditor.entries)
}

func TestGetRoute_WithFuelStop(t *testing.T) {
	f := newFixture(t)
	f.places.results[location.CategoryFuel] = []location.Place{
		{Name: "Aral Holzmarktstraße", DistanceKM: 3, MapLink: "https://www.google.com/maps/dir/Berlin/Aral%20Holzmarktstra%C3%9Fe/"},
		{Name: "Shell Alexanderplatz", DistanceKM: 5, MapLink: "x"},
	}

	res, err := f.dispatcher.Dispatch(context.Background(), driver, Invocation{
		Name:      GetRoute,
		Arguments: map[string]string{"origin": "Hamburg", "destination": "Munich"},
	})
	require.NoError(t, err)

	want := "Route sent!\n\n" +
		"PickUp: Hamburg (9:00 AM)\n\n" +
		"Delivery: Munich (5:00 PM)\n\n" +
		"https://www.google.com/maps/dir/Hamburg/Munich/\n\n" +
		"Recommended Fuel Stop: 3KMs (Aral Holzmarktstraße)\n\n" +
		"Route: https://www.google.com/maps/dir/Berlin/Aral%20Holzmarktstra%C3%9Fe/"
	assert.Equal(t, want, res.Text)
	assert.Equal(t, []string{"Berlin"}, f.places.anchors, "fuel stop comes from the corridor origin")
	assert.Equal(t, 1, f.auditor.count(audit.EventToolInvoked))
}

func TestGetRoute_NoFuelStop(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), driver, Invocation{
		Name:      GetRoute,
		Arguments: map[string]string{"origin": "Berlin", "destination": "Vienna"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Text, "https://www.google.com/maps/dir/Berlin/Vienna/"))
	assert.NotContains(t, res.Text, "Recommended Fuel Stop")
}

func TestGetGasStations(t *testing.T) {
	f := newFixture(t)
	f.places.results[location.CategoryFuel] = []location.Place{
		{Name: "Aral Holzmarktstraße", DistanceKM: 3, MapLink: "link-a", FuelPrices: "DIESEL: 1.699€"},
		{Name: "Shell Alexanderplatz", DistanceKM: 5, MapLink: "link-b"},
	}

	res, err := f.dispatcher.Dispatch(context.Background(), driver, Invocation{
		Name:      GetGasStations,
		Arguments: map[string]string{"origin": "Berlin", "destination": "Vienna"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Name: Aral Holzmarktstraße | 3Kms\nlink-a\n\nName: Shell Alexanderplatz | 5Kms\nlink-b\n\n", res.Text)
	assert.Equal(t, []string{"Berlin"}, f.places.anchors)

	notes := f.notes(t)
	require.Len(t, notes, 1)
	assert.True(t, strings.HasPrefix(notes[0], "Gas station found: "))
	assert.Contains(t, notes[0], "DIESEL: 1.699€")
	assert.True(t, strings.HasSuffix(notes[0], ", Share the details with user"))
}

func TestGetRepairStations_Empty(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), driver, Invocation{
		Name:      GetRepairStations,
		Arguments: map[string]string{"origin": "Nowhere", "destination": "Vienna"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.False(t, res.NoOp)
	assert.Equal(t, []string{"Repair shops found: [], Share the details with user"}, f.notes(t))
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, string, session.Role, string) error {
	return errors.New("disk full")
}

func TestDeveloperNoteFailureDoesNotFailTool(t *testing.T) {
	places := &fakePlaces{results: map[location.Category][]location.Place{
		location.CategoryRepair: {{Name: "ATU Mitte", DistanceKM: 2, MapLink: "l"}},
	}}
	d := NewDispatcher(nil, failingHistory{}, places, nil, Corridor{Origin: "Berlin"})

	res, err := d.Dispatch(context.Background(), driver, Invocation{
		Name:      GetRepairStations,
		Arguments: map[string]string{"origin": "Berlin", "destination": "Vienna"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Name: ATU Mitte | 2Kms\nl\n\n", res.Text)
}
