package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"deviceguard/internal/authz"
	"deviceguard/internal/config"
	"deviceguard/internal/middleware"
	"deviceguard/internal/utils"
)

func main() {
	subject := flag.String("sub", "", "moderator id recorded as blocked_by")
	role := flag.String("role", authz.RoleModerator, "moderator or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Error: -sub is required")
		os.Exit(2)
	}
	if !authz.Valid(*role) {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	jti, err := utils.RandomHex(16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token id: %v\n", err)
		os.Exit(1)
	}
	tok, err := middleware.NewToken(cfg.JWT.Secret, cfg.JWT.Issuer, *subject, *role, jti, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
