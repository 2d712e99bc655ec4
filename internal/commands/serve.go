package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/utils/clock"

	"surveyflow/internal/config"
	"surveyflow/internal/generate"
	"surveyflow/internal/httpserver"
	"surveyflow/internal/store"
	"surveyflow/internal/workflow"
)

// RunServe is the single entry point for `surveyflow serve`.
//
// It opens the bbolt store, selects the generation backend (Anthropic when an
// API key is configured, the offline template generator otherwise), and runs
// the HTTP server until interrupted.
func RunServe(addrOverride string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if len(cfg.Server.Tokens) == 0 {
		token, err := generateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
			os.Exit(1)
		}
		cfg.Server.Tokens = []string{token}
		if saveErr := config.Save(cfg); saveErr != nil {
			fmt.Fprintf(os.Stderr, "[warn] could not save generated token: %v\n", saveErr)
		}
		fmt.Printf("Generated token: %s\n", token)
		fmt.Printf("(saved to %s, use this token in API clients)\n", config.ConfigPath)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	var gen generate.Generator
	if cfg.Anthropic.APIKey != "" {
		gen = generate.NewAnthropicGenerator(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.Model)
		log.Printf("[serve] using Anthropic generation backend (model %s)", cfg.Anthropic.Model)
	} else {
		gen = generate.TemplateGenerator{}
		log.Printf("[serve] no Anthropic API key configured, using template generator")
	}

	engine := workflow.NewEngine(st, gen, clock.RealClock{})

	addr := addrOverride
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = "127.0.0.1:8844"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("surveyflow server listening on %s\n", addr)
	srv := httpserver.NewHTTPServer(engine, st, cfg.Server.Tokens, Version)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[http] error: %v\n", err)
		}
	}()

	<-ctx.Done()
	fmt.Printf("\nShutting down...\n")
	shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
	defer c()
	_ = srv.Shutdown(shutCtx)
}

// generateToken returns a random 32-char hex token.
func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
