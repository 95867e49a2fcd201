// Command tokengen prints a signed bearer token for the dispatcher admin API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/haulbot/dispatcher/internal/auth"
	"github.com/haulbot/dispatcher/internal/config"
)

func main() {
	operator := flag.String("operator", "ops", "operator name embedded in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_EXPIRY)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if len(cfg.JWT.Secret) < 32 {
		slog.Error("JWT_SECRET must be at least 32 characters")
		os.Exit(1)
	}

	token, expires, err := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry).Generate(*operator, *ttl)
	if err != nil {
		slog.Error("generating token", "error", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.UTC().Format(time.RFC3339))
}
