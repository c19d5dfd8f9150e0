// Command presign-token mints bearer tokens accepted by presign-server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
	"github.com/tendant/simple-presign/pkg/simplepresign/config"
)

func main() {
	user := flag.String("user", "", "user id to embed in the token (required)")
	permissions := flag.String("permissions", "upload,download,list", "comma separated permissions")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to JWT_EXPIRATION_HOURS")
	envFile := flag.String("env", ".env", "dotenv file to read")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadAuth(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.JWTExpirationHours) * time.Hour
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecretKey, lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create issuer: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := issuer.Issue(*user, auth.ParsePermissions(*permissions))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
