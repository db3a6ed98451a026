package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blkluv/nostatus/config"
	"github.com/blkluv/nostatus/internal/engine"
	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/models"
	"github.com/blkluv/nostatus/internal/relay"
	"github.com/blkluv/nostatus/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	fmt.Println("\n" +
		"███╗   ██╗  ██████╗  ███████╗ ████████╗  █████╗  ████████╗ ██╗   ██╗ ███████╗\n" +
		"████╗  ██║ ██╔═══██╗ ██╔════╝ ╚══██╔══╝ ██╔══██╗ ╚══██╔══╝ ██║   ██║ ██╔════╝\n" +
		"██╔██╗ ██║ ██║   ██║ ███████╗    ██║    ███████║    ██║    ██║   ██║ ███████╗\n" +
		"██║╚██╗██║ ██║   ██║ ╚════██║    ██║    ██╔══██║    ██║    ██║   ██║ ╚════██║\n" +
		"██║ ╚████║ ╚██████╔╝ ███████║    ██║    ██║  ██║    ██║    ╚██████╔╝ ███████║\n" +
		"╚═╝  ╚═══╝  ╚═════╝  ╚══════╝    ╚═╝    ╚═╝  ╚═╝    ╚═╝     ╚═════╝  ╚══════╝")
	fmt.Println("   Live Status Feed for Nostr")
	fmt.Println("   ━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[CONFIG] Failed to load configuration: %v", err)
	}

	// 2. Open the Session Store
	log.Println("[STORE] Initializing...")
	sessions, err := store.Open(cfg.Database, store.ModeReadWrite)
	if err != nil {
		log.Fatalf("[STORE] Failed to initialize: %v", err)
	}
	defer sessions.Close()
	log.Println("[STORE] Ready")

	// 3. Create the Signer
	signer, err := ident.NewKeySigner(cfg.SecretKey, nil)
	if err != nil {
		log.Fatalf("[IDENT] Invalid secret key: %v", err)
	}

	// 4. Connect the Relay Hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := relay.NewHub(ctx)
	defer hub.Stop()

	// 5. Bring up the Engine
	eng := engine.New(ctx, engine.Options{
		Transport:     hub,
		Signer:        signer,
		Sessions:      sessions,
		DefaultRelays: cfg.DefaultRelays,
		ProbeInterval: cfg.GetProbeInterval(),
		ProbeAttempts: cfg.ProbeAttempts,
	})
	defer eng.Stop()

	// 6. Login, reusing the stored session when it matches the configured key
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		log.Fatalf("[IDENT] Failed to derive public key: %v", err)
	}
	stored, err := sessions.Identity()
	if err != nil {
		log.Fatalf("[STORE] Failed to read session: %v", err)
	}
	if stored == pubkey {
		if _, err := eng.Resume(ctx); err != nil {
			log.Fatalf("[ENGINE] Failed to resume session: %v", err)
		}
	} else {
		if err := eng.Login(ctx); err != nil {
			log.Fatalf("[ENGINE] Failed to login: %v", err)
		}
	}

	// 7. Render the feed whenever it changes, with a short debounce so a burst
	// of history events redraws once
	redraw := time.NewTimer(time.Second)
	if !redraw.Stop() {
		<-redraw.C
	}
	pending := false

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	// 8. Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("\n[MAIN] Feed running. Press Ctrl+C to exit.")

	for {
		select {
		case <-eng.Updates():
			if !pending {
				redraw.Reset(300 * time.Millisecond)
				pending = true
			}
		case <-redraw.C:
			pending = false
			printFeed(eng)
		case <-ticker.C:
			profiles, statuses, timers := eng.Stats()
			connected, failing, banned := hub.Stats()
			log.Printf("[MAIN] Sync: %s | Profiles: %d | Statuses: %d | Expiry timers: %d | Relays: %d connected, %d failing, %d banned",
				eng.SyncState(), profiles, statuses, timers, connected, failing, banned)
		case <-sigChan:
			log.Println("\n[MAIN] Shutdown signal received")
			eng.Stop()
			log.Println("[MAIN] Exiting...")
			return
		}
	}
}

func printFeed(eng *engine.Engine) {
	feed := eng.Feed()
	if len(feed) == 0 {
		return
	}

	fmt.Println("\n────────────────────────────────────────────────────────────")
	for i, pubkey := range feed {
		st, ok := eng.Status(pubkey)
		if !ok {
			continue
		}
		fmt.Printf("%3d. %-24s %s\n", i+1, eng.Profile(pubkey).BestName(), formatStatus(st))
	}
	fmt.Println("────────────────────────────────────────────────────────────")
}

func formatStatus(st *models.UserStatus) string {
	var parts []string
	if st.General != nil {
		parts = append(parts, st.General.Content)
	}
	if st.Music != nil {
		parts = append(parts, "♪ "+st.Music.Content)
	}
	if len(parts) == 2 {
		return parts[0] + "  |  " + parts[1]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return ""
}
