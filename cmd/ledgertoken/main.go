// Package main выпускает токен вызывающей системы для API леджера FODI.
//
// Использование:
//
//	LEDGER_AUTH_SECRET=... ledgertoken -caller order-service -ttl 720h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Fodi999/fodi-ledger/internal/middleware"
)

type tokenConfig struct {
	AuthSecret string `env:"LEDGER_AUTH_SECRET,notEmpty"`
}

func main() {
	caller := flag.String("caller", "", "name of the calling system, stored in the token subject")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*caller, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "ledgertoken:", err)
		os.Exit(1)
	}
}

func run(caller string, ttl time.Duration) error {
	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	token, err := middleware.NewAuthMiddleware(cfg.AuthSecret).Token(caller, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
