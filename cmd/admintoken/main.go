// Command admintoken выпускает токен модератора для админских маршрутов.
//
//	go run ./cmd/admintoken --config=./config/local.yaml --subject=moderator --ttl=12h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"tourism_media/internal/config"
	"tourism_media/internal/lib/jwt"
)

func main() {
	subject := flag.String("subject", "moderator", "token subject")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")

	cfg := config.MustLoad()

	token, err := jwt.NewToken(cfg.Auth.JWTSecret, *subject, jwt.RoleAdmin, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
