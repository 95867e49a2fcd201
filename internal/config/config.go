package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageBolt     = "bolt"
)

type Config struct {
	Server       ServerConfig
	DB           DBConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Storage      StorageConfig
	JWT          JWTConfig
	OpenAI       OpenAIConfig
	Google       GoogleConfig
	Geocoder     GeocoderConfig
	Twilio       TwilioConfig
	XMPP         XMPPConfig
	Media        MediaConfig
	Route        RouteConfig
	Conversation ConversationConfig
	RateLimit    RateLimitConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// HistoryTTL bounds how long a cached session history survives without reads.
	HistoryTTL time.Duration
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type StorageConfig struct {
	Driver   string
	BoltPath string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	MaxTokens          int
	TranscriptionModel string
	SpeechModel        string
	Voice              string
}

type GoogleConfig struct {
	MapsAPIKey         string
	PlacesURL          string
	TranslateAPIKey    string
	TranslateCredsFile string
	TranslateEndpoint  string
}

type GeocoderConfig struct {
	URL       string
	UserAgent string
}

type TwilioConfig struct {
	AccountSID         string
	AuthToken          string
	FromNumber         string
	APIBaseURL         string
	ValidateSignatures bool
}

type XMPPConfig struct {
	Enabled         bool
	Host            string
	Port            int
	ComponentName   string
	ComponentSecret string
}

func (c XMPPConfig) ComponentAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MediaConfig struct {
	Root          string
	PublicBaseURL string
}

type RouteConfig struct {
	CorridorOrigin      string
	CorridorDestination string
}

type ConversationConfig struct {
	BaseLanguage    string
	ProviderTimeout time.Duration
	Lanes           int
}

type RateLimitConfig struct {
	Requests  int
	WindowSec int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Storage: StorageConfig{
			Driver:   k.String("storage.driver"),
			BoltPath: k.String("storage.bolt.path"),
		},
		JWT: JWTConfig{
			Secret: k.String("jwt.secret"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             k.String("openai.api.key"),
			BaseURL:            k.String("openai.base.url"),
			ChatModel:          k.String("openai.chat.model"),
			MaxTokens:          k.Int("openai.max.tokens"),
			TranscriptionModel: k.String("openai.transcription.model"),
			SpeechModel:        k.String("openai.speech.model"),
			Voice:              k.String("openai.voice"),
		},
		Google: GoogleConfig{
			MapsAPIKey:         k.String("google.maps.api.key"),
			PlacesURL:          k.String("google.places.url"),
			TranslateAPIKey:    k.String("google.translate.api.key"),
			TranslateCredsFile: k.String("google.translate.credentials.file"),
			TranslateEndpoint:  k.String("google.translate.endpoint"),
		},
		Geocoder: GeocoderConfig{
			URL:       k.String("geocoder.url"),
			UserAgent: k.String("geocoder.user.agent"),
		},
		Twilio: TwilioConfig{
			AccountSID:         k.String("twilio.account.sid"),
			AuthToken:          k.String("twilio.auth.token"),
			FromNumber:         k.String("twilio.from.number"),
			APIBaseURL:         k.String("twilio.api.base.url"),
			ValidateSignatures: k.Bool("twilio.validate.signatures"),
		},
		XMPP: XMPPConfig{
			Enabled:         k.Bool("xmpp.enabled"),
			Host:            k.String("xmpp.host"),
			Port:            k.Int("xmpp.port"),
			ComponentName:   k.String("xmpp.component.name"),
			ComponentSecret: k.String("xmpp.component.secret"),
		},
		Media: MediaConfig{
			Root:          k.String("media.root"),
			PublicBaseURL: k.String("media.public.base.url"),
		},
		Route: RouteConfig{
			CorridorOrigin:      k.String("route.corridor.origin"),
			CorridorDestination: k.String("route.corridor.destination"),
		},
		Conversation: ConversationConfig{
			BaseLanguage: k.String("conversation.base.language"),
			Lanes:        k.Int("conversation.lanes"),
		},
		RateLimit: RateLimitConfig{
			Requests:  k.Int("ratelimit.requests"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	applyDefaults(cfg)

	if cfg.JWT.Expiry, err = parseDuration(k.String("jwt.expiry"), "24h"); err != nil {
		return nil, fmt.Errorf("parsing jwt expiry: %w", err)
	}
	if cfg.Redis.HistoryTTL, err = parseDuration(k.String("redis.history.ttl"), "1h"); err != nil {
		return nil, fmt.Errorf("parsing redis history ttl: %w", err)
	}
	if cfg.Conversation.ProviderTimeout, err = parseDuration(k.String("conversation.provider.timeout"), "30s"); err != nil {
		return nil, fmt.Errorf("parsing provider timeout: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "dispatcher"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "dispatcher"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StoragePostgres
	}
	if cfg.Storage.BoltPath == "" {
		cfg.Storage.BoltPath = "data/dispatcher.bolt"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4-turbo"
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 200
	}
	if cfg.OpenAI.TranscriptionModel == "" {
		cfg.OpenAI.TranscriptionModel = "whisper-1"
	}
	if cfg.OpenAI.SpeechModel == "" {
		cfg.OpenAI.SpeechModel = "tts-1"
	}
	if cfg.OpenAI.Voice == "" {
		cfg.OpenAI.Voice = "echo"
	}
	if cfg.Google.PlacesURL == "" {
		cfg.Google.PlacesURL = "https://places.googleapis.com/v1/places:searchNearby"
	}
	if cfg.Geocoder.URL == "" {
		cfg.Geocoder.URL = "https://nominatim.openstreetmap.org/search"
	}
	if cfg.Geocoder.UserAgent == "" {
		cfg.Geocoder.UserAgent = "haulbot-dispatcher"
	}
	if cfg.Twilio.APIBaseURL == "" {
		cfg.Twilio.APIBaseURL = "https://api.twilio.com"
	}
	if cfg.XMPP.Host == "" {
		cfg.XMPP.Host = "localhost"
	}
	if cfg.XMPP.Port == 0 {
		cfg.XMPP.Port = 5275
	}
	if cfg.XMPP.ComponentName == "" {
		cfg.XMPP.ComponentName = "dispatch.localhost"
	}
	if cfg.Media.Root == "" {
		cfg.Media.Root = "media"
	}
	if cfg.Media.PublicBaseURL == "" {
		cfg.Media.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Route.CorridorOrigin == "" {
		cfg.Route.CorridorOrigin = "Berlin"
	}
	if cfg.Route.CorridorDestination == "" {
		cfg.Route.CorridorDestination = "Vienna"
	}
	if cfg.Conversation.BaseLanguage == "" {
		cfg.Conversation.BaseLanguage = "en"
	}
	if cfg.Conversation.Lanes == 0 {
		cfg.Conversation.Lanes = 8
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 30
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
