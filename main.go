package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"polling-gateway/config"
	"polling-gateway/gateway"
	"polling-gateway/identity"
	"polling-gateway/journal"
	"polling-gateway/ledger"
	"polling-gateway/ratelimit"
)

func main() {
	logger := zerolog.New(
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC822,
		},
	).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid PROGRAM_ID")
	}

	signers, err := ledger.NewSignerRegistry(cfg.Signers, cfg.DefaultSigner)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid SIGNERS")
	}
	logger.Info().Strs("signers", signers.Names()).Str("default", cfg.DefaultSigner).Msg("signer registry loaded")

	ledgerClient := ledger.NewClient(
		cfg.RPCEndpoint,
		programID,
		signers,
		cfg.RPCQPS,
		cfg.DownstreamTimeout,
		logger.With().Str("component", "ledger").Logger(),
	)

	var identityClient gateway.IdentityClient
	if cfg.IdentityURL != "" {
		identityClient = identity.NewClient(cfg.IdentityURL, cfg.DownstreamTimeout)
		logger.Info().Str("url", cfg.IdentityURL).Msg("identity adapter enabled")
	} else {
		logger.Info().Msg("identity adapter disabled, auth routes not mounted")
	}

	var txJournal *journal.Journal
	if cfg.JournalDSN != "" {
		txJournal, err = journal.Open(cfg.JournalDSN, logger.With().Str("component", "journal").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open submission journal")
		}
		defer txJournal.Close()
	}

	limiter := ratelimit.New(cfg.RatePoints, cfg.RateWindow)
	limiter.StartJanitor(ctx)

	var stats ratelimit.StatsStore
	if cfg.StatsRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StatsRedisAddr,
			Password: cfg.StatsRedisPassword,
			DB:       cfg.StatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("redis stats ping failed")
		}
		stats = ratelimit.NewRedisStatsStore(rdb)
		logger.Info().Str("addr", cfg.StatsRedisAddr).Msg("admission stats enabled")
	}

	handlers := &gateway.Handlers{
		Ledger:   ledgerClient,
		Identity: identityClient,
		Cluster:  cfg.Cluster,
		Logger:   logger.With().Str("component", "gateway").Logger(),
	}
	if txJournal != nil {
		handlers.Journal = txJournal
	}

	router := gateway.NewRouter(handlers, gateway.RouterOptions{
		Limiter: limiter,
		Stats:   stats,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.ListenAddr).Str("rpc", cfg.RPCEndpoint).Msg("gateway listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
