package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that would break a running dispatcher.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}

	switch c.Storage.Driver {
	case StoragePostgres:
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required when STORAGE_DRIVER=postgres")
		}
	case StorageBolt:
		if c.Storage.BoltPath == "" {
			errs = append(errs, "STORAGE_BOLT_PATH is required when STORAGE_DRIVER=bolt")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageBolt, c.Storage.Driver))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}
	if c.OpenAI.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("OPENAI_MAX_TOKENS must be positive, got %d", c.OpenAI.MaxTokens))
	}
	if c.Google.MapsAPIKey == "" {
		errs = append(errs, "GOOGLE_MAPS_API_KEY is required")
	}
	if c.Google.TranslateAPIKey == "" && c.Google.TranslateCredsFile == "" {
		errs = append(errs, "one of GOOGLE_TRANSLATE_API_KEY or GOOGLE_TRANSLATE_CREDENTIALS_FILE is required")
	}

	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "" {
		errs = append(errs, "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required")
	}

	if c.XMPP.Enabled && c.XMPP.ComponentSecret == "" {
		errs = append(errs, "XMPP_COMPONENT_SECRET is required when XMPP_ENABLED=true")
	}

	if c.Route.CorridorOrigin == "" || c.Route.CorridorDestination == "" {
		errs = append(errs, "ROUTE_CORRIDOR_ORIGIN and ROUTE_CORRIDOR_DESTINATION must be set")
	}
	if c.Conversation.Lanes < 1 {
		errs = append(errs, fmt.Sprintf("CONVERSATION_LANES must be positive, got %d", c.Conversation.Lanes))
	}
	if c.Conversation.ProviderTimeout <= 0 {
		errs = append(errs, "CONVERSATION_PROVIDER_TIMEOUT must be positive")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Unsigned webhooks are allowed for local tunnels, but never silently.
	if !c.Twilio.ValidateSignatures {
		slog.Warn("TWILIO_VALIDATE_SIGNATURES is off: webhook requests are not authenticated")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
