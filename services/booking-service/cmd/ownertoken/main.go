// Command ownertoken prints a bearer token for the owner API.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/NathalieLiekens/vp-backend/pkg/auth"
	"github.com/NathalieLiekens/vp-backend/pkg/config"
)

func main() {
	email := flag.String("email", "", "owner email, defaults to OWNER_EMAIL")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to JWT_EXPIRE_MIN")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	signer, err := auth.NewSigner(cfg.JWTSecret)
	if err != nil {
		log.Fatal("JWT_SECRET: ", err)
	}
	if *email == "" {
		*email = cfg.OwnerEmail
	}
	if *ttl == 0 {
		*ttl = time.Duration(cfg.JWTExpireMin) * time.Minute
	}

	tok, err := signer.CreateAccessToken("owner", auth.RoleOwner, *email, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok)
}
