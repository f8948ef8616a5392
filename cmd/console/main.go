// Package main runs the token administration console: an HTTP server that
// lists the Token-2022 mints the configured wallet administers and submits
// create and edit transactions on its behalf.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-token-console/internal/auth"
	"solana-token-console/internal/console"
	"solana-token-console/internal/directory"
	"solana-token-console/internal/mutation"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/rpc"
	"solana-token-console/internal/storage"
	chstore "solana-token-console/internal/storage/clickhouse"
	"solana-token-console/internal/storage/memory"
	"solana-token-console/internal/storage/migrations"
	pgstore "solana-token-console/internal/storage/postgres"
	"solana-token-console/internal/wallet"
)

func main() {
	// A missing .env is fine; the environment is used as is.
	_ = godotenv.Load()

	defaults := mutation.DefaultEconomics()

	rpcEndpoint := flag.String("rpc-endpoint", envOr("SOLANA_RPC_ENDPOINT", "https://api.devnet.solana.com"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, speeds up confirmation)")
	listenAddr := flag.String("listen-addr", envOr("CONSOLE_LISTEN_ADDR", "127.0.0.1:8080"), "HTTP listen address")
	walletKey := flag.String("wallet-key", os.Getenv("WALLET_PRIVATE_KEY"), "Base58 wallet secret key")
	walletKeyfile := flag.String("wallet-keyfile", os.Getenv("WALLET_KEYFILE"), "solana-keygen JSON key file")
	cluster := flag.String("cluster", envOr("SOLANA_CLUSTER", "devnet"), "Cluster name for explorer links")
	sessionSecret := flag.String("session-secret", os.Getenv("CONSOLE_SESSION_SECRET"), "HMAC secret for session cookies (random when empty)")
	password := flag.String("console-password", os.Getenv("CONSOLE_PASSWORD"), "Operator password required to connect the wallet")
	passwordHash := flag.String("console-password-hash", os.Getenv("CONSOLE_PASSWORD_HASH"), "bcrypt hash of the operator password (instead of --console-password)")
	activityBackend := flag.String("activity-backend", envOr("ACTIVITY_BACKEND", "memory"), "Activity store: memory, postgres or clickhouse")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	decimals := flag.Uint("decimals", uint(defaults.Decimals), "Decimals of created tokens")
	feeBPS := flag.Uint("fee-bps", uint(defaults.FeeBasisPoints), "Transfer fee of created tokens in basis points")
	maxFee := flag.Uint64("max-fee", defaults.MaxFee, "Maximum transfer fee in whole tokens")
	initialSupply := flag.Uint64("initial-supply", defaults.InitialSupply, "Whole tokens minted to the creator")
	concurrency := flag.Int("directory-concurrency", envInt("DIRECTORY_CONCURRENCY", directory.DefaultConcurrency), "Token accounts resolved in parallel")
	confirmTimeout := flag.Duration("confirm-timeout", mutation.DefaultConfirmTimeout, "How long to wait for confirmation")

	flag.Parse()

	logger := log.New(os.Stdout, "[console] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	kp, err := loadWallet(*walletKey, *walletKeyfile)
	if err != nil {
		logger.Fatalf("Failed to load wallet: %v", err)
	}
	if *decimals > 255 || *feeBPS > mutation.MaxBasisPoints {
		logger.Fatal("--decimals must fit in a byte and --fee-bps must not exceed 10000")
	}
	economics := mutation.Economics{
		Decimals:       uint8(*decimals),
		FeeBasisPoints: uint16(*feeBPS),
		MaxFee:         *maxFee,
		InitialSupply:  *initialSupply,
	}

	hash, err := operatorHash(*password, *passwordHash)
	if err != nil {
		logger.Fatalf("Operator password: %v", err)
	}

	secret := []byte(*sessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Fatalf("Failed to generate session secret: %v", err)
		}
		logger.Println("No --session-secret set, sessions will not survive a restart")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(observability.DefaultNamespace)

	activity, closeStore, err := openActivityStore(ctx, *activityBackend, *postgresDSN, *clickhouseDSN, metrics, logger)
	if err != nil {
		logger.Fatalf("Failed to open activity store: %v", err)
	}
	defer closeStore()

	client := rpc.NewHTTPClient(*rpcEndpoint, rpc.WithMetrics(metrics))

	var subscriber rpc.SignatureSubscriber
	if *wsEndpoint != "" {
		ws, err := rpc.NewWSClient(ctx, *wsEndpoint, nil, metrics)
		if err != nil {
			logger.Printf("WebSocket unavailable, confirming by polling: %v", err)
		} else {
			defer ws.Close()
			subscriber = ws
		}
	}

	mutator, err := mutation.NewService(mutation.Options{
		Client:         client,
		Confirmer:      rpc.NewConfirmer(client, subscriber),
		Activity:       activity,
		Economics:      &economics,
		Cluster:        *cluster,
		ConfirmTimeout: *confirmTimeout,
		Logger:         log.New(os.Stdout, "[mutation] ", log.LstdFlags|log.Lshortfile),
		Metrics:        metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create mutation service: %v", err)
	}

	_, writer := auth.New()
	adapter := wallet.NewAdapter(writer,
		wallet.WithLogger(log.New(os.Stdout, "[wallet] ", log.LstdFlags|log.Lshortfile)),
		wallet.WithMetrics(metrics),
	)

	srv, err := console.NewServer(ctx, console.Options{
		Adapter: adapter,
		Wallet:  kp,
		Lister: directory.NewService(directory.Options{
			Client:      client,
			Concurrency: *concurrency,
			Logger:      log.New(os.Stdout, "[directory] ", log.LstdFlags|log.Lshortfile),
			Metrics:     metrics,
		}),
		Mutator:       mutator,
		Activity:      activity,
		SessionSecret: secret,
		PasswordHash:  hash,
		SubmitTimeout: *confirmTimeout + 30*time.Second,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create console: %v", err)
	}

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Graceful shutdown failed: %v", err)
		}
	}()

	logger.Printf("Console for wallet %s on %s (rpc %s, cluster %s, activity %s)",
		kp.PublicKey(), *listenAddr, *rpcEndpoint, *cluster, *activityBackend)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

func loadWallet(key, keyfile string) (*wallet.Keypair, error) {
	switch {
	case key != "" && keyfile != "":
		return nil, errors.New("set only one of --wallet-key and --wallet-keyfile")
	case key != "":
		return wallet.KeypairFromBase58(key)
	case keyfile != "":
		return wallet.KeypairFromFile(keyfile)
	default:
		return nil, errors.New("--wallet-key or --wallet-keyfile is required")
	}
}

func operatorHash(password, hash string) ([]byte, error) {
	switch {
	case password != "" && hash != "":
		return nil, errors.New("set only one of --console-password and --console-password-hash")
	case hash != "":
		return []byte(hash), nil
	case password != "":
		return console.HashPassword(password)
	default:
		return nil, errors.New("--console-password or --console-password-hash is required")
	}
}

// openActivityStore returns the configured store and a func that releases it.
func openActivityStore(ctx context.Context, backend, postgresDSN, clickhouseDSN string, metrics *observability.Metrics, logger *log.Logger) (storage.ActivityStore, func(), error) {
	switch backend {
	case "memory":
		return memory.NewActivityStore(), func() {}, nil

	case "postgres":
		if postgresDSN == "" {
			return nil, nil, errors.New("--postgres-dsn is required for the postgres backend")
		}
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, err
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Printf("PostgreSQL migrations applied: %v", applied)
		return pgstore.NewActivityStore(pool, metrics), pool.Close, nil

	case "clickhouse":
		if clickhouseDSN == "" {
			return nil, nil, errors.New("--clickhouse-dsn is required for the clickhouse backend")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, err
		}
		return chstore.NewActivityStore(conn, metrics), func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown activity backend %q", backend)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
