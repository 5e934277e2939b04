// Command tokengen issues bearer tokens signed with AUTH_JWT_SECRET for local
// development and smoke tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/tracechain/internal/actor"
	"github.com/smallbiznis/tracechain/internal/config"
)

func main() {
	subject := flag.String("sub", "", "actor id")
	roles := flag.String("roles", "", "comma separated roles")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if strings.TrimSpace(*subject) == "" {
		fmt.Fprintln(os.Stderr, "tokengen: -sub is required")
		os.Exit(2)
	}

	auth, err := actor.NewAuthenticator(config.Load())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.Issue(actor.Actor{
		ID:    strings.TrimSpace(*subject),
		Roles: actor.NormalizeRoles(strings.Split(*roles, ",")),
	}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
