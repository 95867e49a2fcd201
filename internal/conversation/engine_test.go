package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulbot/dispatcher/internal/database"
	"github.com/haulbot/dispatcher/internal/llm"
	"github.com/haulbot/dispatcher/internal/location"
	"github.com/haulbot/dispatcher/internal/preference"
	"github.com/haulbot/dispatcher/internal/session"
	"github.com/haulbot/dispatcher/internal/tools"
)

const driver = "whatsapp:+4917612345678"

// fakeTranslator tags translated text with the target language.
type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeTranslator) Translate(_ context.Context, text, src, dst string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return "", errors.New("translate quota exceeded")
	}
	return dst + ":" + text, nil
}

func (f *fakeTranslator) DetectLanguage(context.Context, string) string { return "en" }
func (f *fakeTranslator) BaseLanguage() string                        { return "en" }

type fakeSpeech struct {
	transcript    string
	transcribeErr error
	synthErr      error
	synthesized   []string
}

func (f *fakeSpeech) Transcribe(context.Context, []byte) (string, error) {
	return f.transcript, f.transcribeErr
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string) (string, error) {
	f.synthesized = append(f.synthesized, text)
	if f.synthErr != nil {
		return "", f.synthErr
	}
	return "https://dispatch.example.com/media/abc.mp3", nil
}

type fakePlaces struct {
	results map[location.Category][]location.Place
}

func (f *fakePlaces) FindNearby(_ context.Context, c location.Category, _ string) []location.Place {
	if r, ok := f.results[c]; ok {
		return r
	}
	return []location.Place{}
}

type harness struct {
	engine     *Engine
	prefs      *preference.Service
	history    *session.Store
	translator *fakeTranslator
	speech     *fakeSpeech
	model      *llm.Mock
	places     *fakePlaces
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.OpenBolt(filepath.Join(t.TempDir(), "engine.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		prefs:      preference.NewService(preference.NewBoltRepository(db)),
		history:    session.NewStore(session.NewBoltRepository(db), nil),
		translator: &fakeTranslator{},
		speech:     &fakeSpeech{},
		model:      llm.NewMock("Good morning driver"),
		places:     &fakePlaces{results: map[location.Category][]location.Place{}},
	}
	corridor := tools.Corridor{Origin: "Berlin", Destination: "Vienna"}
	dispatcher := tools.NewDispatcher(h.prefs, h.history, h.places, nil, corridor)

	h.engine = NewEngine(
		Config{Prompt: BuildPrompt(corridor), MaxTokens: 200},
		Deps{
			Preferences: h.prefs,
			History:     h.history,
			Translator:  h.translator,
			Speech:      h.speech,
			Model:       h.model,
			Tools:       dispatcher,
		},
	)
	return h
}

func (h *harness) setLanguage(t *testing.T, code string) {
	t.Helper()
	_, _, err := h.prefs.Set(context.Background(), driver, code)
	require.NoError(t, err)
}

func (h *harness) respondWithTool(name, args string) {
	h.model.CompleteFunc = func(context.Context, *llm.Request) (*llm.Completion, error) {
		return &llm.Completion{
			ToolCalls:    []llm.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
			FinishReason: "tool_calls",
		}, nil
	}
}

func (h *harness) transcript(t *testing.T) []session.Message {
	t.Helper()
	msgs, err := h.history.List(context.Background(), driver)
	require.NoError(t, err)
	return msgs
}

const englishMenu = "\n\n" +
	"1. View todays route\n" +
	"2. Find nearest fuel stations\n" +
	"3. Find nearest repair stations\n" +
	"4. Review Delivery Instructions\n"

func TestScenarioA_NoPreference(t *testing.T) {
	h := newHarness(t)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, KindText, reply.Kind)
	assert.Equal(t, "Good morning driver"+englishMenu, reply.Body)
	assert.Zero(t, h.translator.calls, "no preference means no translation")

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)

	reqs := h.model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 200, reqs[0].MaxTokens)
	assert.Len(t, reqs[0].Tools, 4)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, llm.RoleDeveloper, reqs[0].Messages[0].Role)
	assert.Contains(t, reqs[0].Messages[0].Content, "Todays route is from Berlin-to-Vienna")
}

func TestScenarioB_FrenchPreference(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "Bonjour"})
	require.NoError(t, err)

	want := "fr:Good morning driver\n\n" +
		"1. fr:View todays route\n" +
		"2. fr:Find nearest fuel stations\n" +
		"3. fr:Find nearest repair stations\n" +
		"4. fr:Review Delivery Instructions\n"
	assert.Equal(t, want, reply.Body)

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "en:Bonjour", msgs[0].Content, "history holds base-language text")
	assert.Equal(t, "Good morning driver", msgs[1].Content)
}

func TestGermanUsesProviderCode(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "ge")

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "Hallo"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Body, "de:Good morning driver"))
}

func TestScenarioC_RouteToolFromAudio(t *testing.T) {
	h := newHarness(t)
	h.speech.transcript = "show me todays route"
	h.places.results[location.CategoryFuel] = []location.Place{
		{Name: "Aral Holzmarktstraße", DistanceKM: 3, MapLink: "https://www.google.com/maps/dir/Berlin/Aral%20Holzmarktstra%C3%9Fe/"},
	}
	h.respondWithTool("get_route", `{"origin":"Berlin","destination":"Vienna"}`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Audio: []byte("ogg")})
	require.NoError(t, err)

	assert.Equal(t, KindText, reply.Kind, "tool output is never voiced")
	assert.Empty(t, h.speech.synthesized)
	assert.Contains(t, reply.Body, "https://www.google.com/maps/dir/Berlin/Vienna/")
	assert.Contains(t, reply.Body, "Recommended Fuel Stop: 3KMs (Aral Holzmarktstraße)")
	assert.True(t, strings.HasSuffix(reply.Body, englishMenu))

	msgs := h.transcript(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "show me todays route", msgs[0].Content)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Route sent!"))
}

func TestScenarioD_UnresolvableOrigin(t *testing.T) {
	h := newHarness(t)
	h.respondWithTool("get_gas_stations", `{"origin":"Atlantis","destination":"Vienna"}`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "fuel near Atlantis"})
	require.NoError(t, err)
	assert.Equal(t, KindText, reply.Kind)
	assert.Equal(t, englishMenu, reply.Body, "empty station list plus menu")
}

func TestScenarioE_UnsupportedLanguage(t *testing.T) {
	h := newHarness(t)
	h.respondWithTool("update_user_preference", `{"language":"xx"}`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "speak klingon"})
	require.NoError(t, err)
	assert.Equal(t, UnsupportedLanguageText+englishMenu, reply.Body)

	lang, err := h.prefs.Language(context.Background(), driver)
	require.NoError(t, err)
	assert.Empty(t, lang)

	msgs := h.transcript(t)
	require.Len(t, msgs, 1, "only the user turn is recorded")
	assert.Equal(t, session.RoleUser, msgs[0].Role)
}

func TestPreferenceUpdateThenNoOp(t *testing.T) {
	h := newHarness(t)
	h.respondWithTool("update_user_preference", `{"language":"es"}`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "hola"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Body, "es:Your preferred language is set to spanish"))

	before := len(h.transcript(t))
	reply, err = h.engine.Process(context.Background(), Request{User: driver, Text: "hola otra vez"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Body, "es:Your preferred language is set to spanish"))

	msgs := h.transcript(t)
	assert.Len(t, msgs, before+1, "no-op confirmation is not recorded")
	assert.Equal(t, session.RoleUser, msgs[len(msgs)-1].Role)
}

func TestAudioAnswerIsSynthesized(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "hi")
	h.speech.transcript = "namaste"

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Audio: []byte("ogg")})
	require.NoError(t, err)
	assert.Equal(t, KindAudio, reply.Kind)
	assert.Equal(t, "https://dispatch.example.com/media/abc.mp3", reply.Body)
	assert.Equal(t, []string{"hi:Good morning driver"}, h.speech.synthesized)
}

func TestSynthesisFailureFallsBackToText(t *testing.T) {
	h := newHarness(t)
	h.speech.transcript = "hello"
	h.speech.synthErr = errors.New("tts down")

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Audio: []byte("ogg")})
	require.NoError(t, err)
	assert.Equal(t, KindText, reply.Kind)
	assert.Equal(t, "Good morning driver"+englishMenu, reply.Body)
}

func TestBlankInboundLeavesHistoryUnchanged(t *testing.T) {
	h := newHarness(t)
	h.speech.transcribeErr = errors.New("whisper timeout")

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Audio: []byte("ogg")})
	require.NoError(t, err)
	assert.Equal(t, KindText, reply.Kind)
	assert.Equal(t, NotUnderstoodText+englishMenu, reply.Body)

	_, err = h.engine.Process(context.Background(), Request{User: driver, Text: "   "})
	require.NoError(t, err)

	assert.Empty(t, h.transcript(t))
	assert.Empty(t, h.model.Requests(), "blank turns never reach the model")
}

func TestBlankInboundIgnoresToolCalls(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
	}{
		{"gas stations", "get_gas_stations", `{"origin":"Berlin","destination":"Vienna"}`},
		{"preference", "update_user_preference", `{"language":"fr"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.places.results[location.CategoryFuel] = []location.Place{
				{Name: "Aral Berlin", DistanceKM: 2, MapLink: "https://www.google.com/maps/dir/Berlin/Aral%20Berlin/"},
			}
			h.respondWithTool(tt.tool, tt.args)

			reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "   "})
			require.NoError(t, err)
			assert.Equal(t, NotUnderstoodText+englishMenu, reply.Body)

			assert.Empty(t, h.transcript(t))
			lang, err := h.prefs.Language(context.Background(), driver)
			require.NoError(t, err)
			assert.Empty(t, lang)
		})
	}
}

func TestBlankInboundRepliesInDriverLanguage(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: ""})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Body, "fr:"+NotUnderstoodText))
	assert.Empty(t, h.transcript(t))
}

func TestModelFailureApologizes(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "es")
	h.model.CompleteFunc = func(context.Context, *llm.Request) (*llm.Completion, error) {
		return nil, errors.New(`openai /chat/completions: API error 500: {"error":"internal"}`)
	}

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "es:"+ApologyText, reply.Body)
	assert.NotContains(t, reply.Body, "API error")

	msgs := h.transcript(t)
	require.Len(t, msgs, 1, "the user turn survives the failure")
}

func TestTranslationFailureKeepsOriginalText(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.translator.fail = true

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "Bonjour"})
	require.NoError(t, err)
	assert.Equal(t, "Good morning driver"+englishMenu, reply.Body)
	assert.Equal(t, "Bonjour", h.transcript(t)[0].Content)
}

func TestOnlyFirstToolCallDispatched(t *testing.T) {
	h := newHarness(t)
	h.model.CompleteFunc = func(context.Context, *llm.Request) (*llm.Completion, error) {
		return &llm.Completion{ToolCalls: []llm.ToolCall{
			{Name: "get_repair_stations", Arguments: `{"origin":"Berlin","destination":"Vienna"}`},
			{Name: "update_user_preference", Arguments: `{"language":"ja"}`},
		}}, nil
	}

	_, err := h.engine.Process(context.Background(), Request{User: driver, Text: "my engine is smoking"})
	require.NoError(t, err)

	lang, err := h.prefs.Language(context.Background(), driver)
	require.NoError(t, err)
	assert.Empty(t, lang, "second tool call ignored")
}

func TestUnknownToolFallsBack(t *testing.T) {
	h := newHarness(t)
	h.respondWithTool("book_hotel", `{}`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "book a room"})
	require.NoError(t, err)
	assert.Equal(t, tools.FallbackText+englishMenu, reply.Body)
}

func TestMissingArgumentsAskForDetails(t *testing.T) {
	h := newHarness(t)
	h.respondWithTool("get_route", `{"origin":"Berlin"}`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "route please"})
	require.NoError(t, err)
	assert.Equal(t, MissingDetailsText+englishMenu, reply.Body)
}

func TestMalformedToolArgumentsApologize(t *testing.T) {
	h := newHarness(t)
	h.respondWithTool("get_route", `{"origin":`)

	reply, err := h.engine.Process(context.Background(), Request{User: driver, Text: "route please"})
	require.NoError(t, err)
	assert.Equal(t, ApologyText, reply.Body)
}

func TestContextReplaysHistoryInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Process(ctx, Request{User: driver, Text: "first"})
	require.NoError(t, err)
	_, err = h.engine.Process(ctx, Request{User: driver, Text: "second"})
	require.NoError(t, err)

	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	var contents []string
	for _, m := range reqs[1].Messages[1:] {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "Good morning driver", "second"}, contents)
}

func TestProcessRequiresUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Process(context.Background(), Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestTranslateTextIdentity(t *testing.T) {
	tr := &fakeTranslator{}
	for _, lang := range []string{"", "en"} {
		out, err := translateText(context.Background(), tr, "Drive safe", lang, outbound)
		require.NoError(t, err)
		assert.Equal(t, "Drive safe", out)
	}
	assert.Zero(t, tr.calls)

	out, err := translateText(context.Background(), tr, "Hola", "es", inbound)
	require.NoError(t, err)
	assert.Equal(t, "en:Hola", out)
}
