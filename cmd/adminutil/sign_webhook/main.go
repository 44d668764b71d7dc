package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/wallet"
)

// Prints the x-signature header for a webhook body, for replaying provider
// events against a local server.
func main() {
	path := flag.String("body", "", "File holding the raw webhook body, - for stdin")
	secret := flag.String("secret", "", "Webhook secret, defaults to PAYMENT_WEBHOOK_SECRET")
	flag.Parse()

	if *path == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/sign_webhook -body event.json [-secret s]")
	}
	if *secret == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		*secret = cfg.PaymentWebhookSecret
	}
	if *secret == "" {
		log.Fatalf("no webhook secret: pass -secret or set PAYMENT_WEBHOOK_SECRET")
	}

	var body []byte
	var err error
	if *path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(*path)
	}
	if err != nil {
		log.Fatalf("read body: %v", err)
	}
	fmt.Printf("x-signature: %s\n", wallet.Sign(body, *secret))
}
