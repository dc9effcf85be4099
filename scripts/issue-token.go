package main

import (
	"fmt"
	"os"
	"time"

	"github.com/skillsync/session-server/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: AUTH_TOKEN_SECRET=... go run scripts/issue-token.go <user-id> [ttl]\n")
		os.Exit(1)
	}

	secret := os.Getenv("AUTH_TOKEN_SECRET")
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Error: AUTH_TOKEN_SECRET is not set\n")
		os.Exit(1)
	}

	ttl := auth.DefaultTokenTTL
	if len(os.Args) > 2 {
		parsed, err := time.ParseDuration(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid ttl: %v\n", err)
			os.Exit(1)
		}
		ttl = parsed
	}

	token, err := auth.NewIssuer(secret).Issue(os.Args[1], ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
