// Command devtoken prints a signed access token for local testing.
// Usage: go run ./cmd/devtoken -role cashier
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/config"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/middleware"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	tenant := flag.String("tenant", "", "tenant UUID (random when empty)")
	operator := flag.String("operator", "", "operator UUID (random when empty)")
	role := flag.String("role", model.RoleCashier, "cashier | supervisor | admin")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env == "production" {
		log.Fatal().Msg("devtoken refuses to run in production")
	}

	tenantID := parseOrNew(*tenant)
	operatorID := parseOrNew(*operator)

	token, err := middleware.NewToken(cfg.JWTSecret, tenantID, operatorID, *role, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Fprintf(os.Stderr, "tenant=%s operator=%s role=%s\n", tenantID, operatorID, *role)
	fmt.Println(token)
}

func parseOrNew(s string) uuid.UUID {
	if s == "" {
		return uuid.New()
	}
	id, err := uuid.Parse(s)
	if err != nil {
		log.Fatal().Err(err).Str("value", s).Msg("invalid UUID")
	}
	return id
}
