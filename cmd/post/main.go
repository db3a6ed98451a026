package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/blkluv/nostatus/config"
	"github.com/blkluv/nostatus/internal/bootstrap"
	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/relay"
	"github.com/blkluv/nostatus/internal/status"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	link := flag.String("link", "", "optional URL attached to the status")
	ttl := flag.Duration("ttl", 0, "optional lifetime after which the status expires (e.g. 30m)")
	clear := flag.Bool("clear", false, "publish an empty status to clear the current one")
	flag.Parse()

	content := strings.Join(flag.Args(), " ")
	if content == "" && !*clear {
		fmt.Fprintln(os.Stderr, "usage: post [-config config.yaml] [-link URL] [-ttl 30m] <content>")
		fmt.Fprintln(os.Stderr, "       post -clear")
		os.Exit(1)
	}
	if *clear {
		content = ""
	}

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[CONFIG] Failed to load configuration: %v", err)
	}

	// 2. Create the Signer
	signer, err := ident.NewKeySigner(cfg.SecretKey, nil)
	if err != nil {
		log.Fatalf("[IDENT] Invalid secret key: %v", err)
	}

	// 3. Connect the Relay Hub
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub := relay.NewHub(ctx)
	defer hub.Stop()

	// 4. Resolve the account's write relays
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		log.Fatalf("[IDENT] Failed to derive public key: %v", err)
	}
	fetcher := bootstrap.NewFetcher(hub, signer, cfg.DefaultRelays)
	meta, err := fetcher.FetchAccountData(ctx, pubkey)
	if err != nil {
		log.Fatalf("[BOOTSTRAP] Failed to resolve account data: %v", err)
	}
	hub.Switch(meta.Relays)

	// 5. Sign and publish
	publisher := status.NewPublisher(hub, signer, status.NewStore())
	event, err := publisher.Publish(ctx, status.Input{
		Content: content,
		LinkURL: *link,
		TTL:     *ttl,
	}, meta.Relays.WriteURLs())
	if err != nil {
		log.Fatalf("[STATUS] Publish failed: %v", err)
	}

	if *clear {
		log.Printf("[STATUS] Cleared status (event %s)", event.ID)
	} else {
		log.Printf("[STATUS] Published status (event %s)", event.ID)
	}
}
