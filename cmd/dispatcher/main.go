package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/haulbot/dispatcher/internal/api"
	"github.com/haulbot/dispatcher/internal/audit"
	"github.com/haulbot/dispatcher/internal/auth"
	"github.com/haulbot/dispatcher/internal/config"
	"github.com/haulbot/dispatcher/internal/conversation"
	"github.com/haulbot/dispatcher/internal/database"
	"github.com/haulbot/dispatcher/internal/llm"
	"github.com/haulbot/dispatcher/internal/location"
	mw "github.com/haulbot/dispatcher/internal/middleware"
	inats "github.com/haulbot/dispatcher/internal/nats"
	"github.com/haulbot/dispatcher/internal/openai"
	"github.com/haulbot/dispatcher/internal/orchestrator"
	"github.com/haulbot/dispatcher/internal/preference"
	iredis "github.com/haulbot/dispatcher/internal/redis"
	"github.com/haulbot/dispatcher/internal/server"
	"github.com/haulbot/dispatcher/internal/session"
	"github.com/haulbot/dispatcher/internal/speech"
	"github.com/haulbot/dispatcher/internal/tools"
	"github.com/haulbot/dispatcher/internal/translation"
	"github.com/haulbot/dispatcher/internal/whatsapp"
	"github.com/haulbot/dispatcher/internal/worker"
	"github.com/haulbot/dispatcher/internal/xmpp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("dispatcher stopped", "error", err)
		os.Exit(1)
	}
}

// stores are the storage-driver dependent repositories.
type stores struct {
	prefs   preference.Repository
	history session.Repository
	audit   *audit.Repository
	check   api.HealthCheck
	close   func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.StorageBolt:
		db, err := database.OpenBolt(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		slog.Info("using embedded storage", "path", cfg.Storage.BoltPath)
		return &stores{
			prefs:   preference.NewBoltRepository(db),
			history: session.NewBoltRepository(db),
			check: func(context.Context) error {
				return db.View(func(*bolt.Tx) error { return nil })
			},
			close: func() { _ = db.Close() },
		}, nil

	default:
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			return nil, err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		return &stores{
			prefs:   preference.NewPostgresRepository(pool),
			history: session.NewPostgresRepository(pool),
			audit:   audit.NewRepository(pool),
			check: func(ctx context.Context) error {
				return database.HealthCheck(ctx, pool)
			},
			close: pool.Close,
		}, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// NATS
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())
	auditor := audit.NewRecorder(publisher)

	// Providers
	translator, err := translation.NewGoogleProvider(ctx, cfg.Google)
	if err != nil {
		return err
	}
	timeout := cfg.Conversation.ProviderTimeout
	translations := translation.NewGateway(translator, cfg.Conversation.BaseLanguage, timeout)

	mapsClient := &http.Client{Timeout: 10 * time.Second}
	places := location.NewService(
		location.NewNominatim(cfg.Geocoder, mapsClient),
		location.NewGooglePlaces(cfg.Google, mapsClient),
		timeout,
	)

	openaiClient := openai.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey)
	files, err := speech.NewFileStore(cfg.Media.Root, cfg.Media.PublicBaseURL)
	if err != nil {
		return err
	}
	voice := speech.NewGateway(speech.NewOpenAI(openaiClient, cfg.OpenAI), files, timeout)

	// Conversation
	prefs := preference.NewService(st.prefs)
	history := session.NewStore(st.history, session.NewCache(redisClient, cfg.Redis.HistoryTTL))
	corridor := tools.Corridor{Origin: cfg.Route.CorridorOrigin, Destination: cfg.Route.CorridorDestination}

	engine := conversation.NewEngine(conversation.Config{
		Prompt:    conversation.BuildPrompt(corridor),
		MaxTokens: cfg.OpenAI.MaxTokens,
		Timeout:   timeout,
	}, conversation.Deps{
		Preferences: prefs,
		History:     history,
		Translator:  translations,
		Speech:      voice,
		Model:       llm.NewOpenAI(openaiClient, cfg.OpenAI.ChatModel, cfg.OpenAI.MaxTokens),
		Tools:       tools.NewDispatcher(prefs, history, places, auditor, corridor),
		Auditor:     auditor,
	})

	lanes := worker.NewPool(cfg.Conversation.Lanes, 16)
	lanes.Start(ctx)
	defer lanes.Close()

	// Channels
	twilio := whatsapp.NewClient(cfg.Twilio, nil)
	relay := orchestrator.NewRelay(consumerMgr)
	relay.Register(inats.ChannelWhatsApp, twilio)

	checks := map[string]api.HealthCheck{
		"database": st.check,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		"nats": func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		},
	}

	if cfg.XMPP.Enabled {
		comp, err := xmpp.NewComponent(cfg.XMPP, xmpp.NewHandler(publisher))
		if err != nil {
			return err
		}
		relay.Register(inats.ChannelXMPP, comp.OutboundSender())
		checks["xmpp"] = comp.Healthy
		background(ctx, "xmpp component", comp.Start)
	}

	orch := orchestrator.NewOrchestrator(publisher, consumerMgr, engine, lanes, twilio)
	background(ctx, "orchestrator", orch.Start)
	background(ctx, "outbound relay", relay.Start)

	var auditLogs api.AuditLister
	if st.audit != nil {
		auditLogs = st.audit
		background(ctx, "audit consumer", audit.NewConsumer(st.audit, consumerMgr).Start)
	}

	// HTTP
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	admin := api.NewAdminHandler(history, relay, auditLogs)
	webhook := whatsapp.NewWebhookHandler(publisher, cfg.Twilio.AuthToken, cfg.Twilio.ValidateSignatures, cfg.Media.PublicBaseURL)
	limiter := mw.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.WindowSec).
		WithKey("ratelimit:sender:", whatsapp.SenderKey)

	handlers := api.HandlerSet{
		WhatsAppWebhook: webhook.Receive,
		Media:           http.FileServer(http.Dir(files.Root())),
		ListChat:        admin.ListChat,
		SendMessage:     admin.SendMessage,
		AuthMiddleware:  auth.Middleware(jwtManager, auth.ScopeAdmin),
		LanesHealthy:    lanes.Running,
	}
	if auditLogs != nil {
		handlers.ListAudit = admin.ListAudit
	}

	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		WebhookRateLimiter: limiter.Middleware,
		Checks:             checks,
	}, handlers)

	return server.New(cfg.Server, router).Run(ctx)
}

// background runs a blocking loop until ctx ends, logging an early failure.
func background(ctx context.Context, name string, start func(context.Context) error) {
	go func() {
		if err := start(ctx); err != nil {
			slog.Error("background loop stopped", "name", name, "error", err)
		}
	}()
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
