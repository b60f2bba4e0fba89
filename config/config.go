package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	RPCEndpoint string
	ProgramID   string
	RPCQPS      float64
	Cluster     string

	// Signers maps a signer name to a base58-encoded private key.
	Signers       map[string]string
	DefaultSigner string

	IdentityURL string

	RatePoints int
	RateWindow time.Duration

	DownstreamTimeout time.Duration

	StatsRedisAddr     string
	StatsRedisPassword string
	StatsRedisDB       int

	JournalDSN string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:         getenvDefault("LISTEN_ADDR", ":3000"),
		RPCEndpoint:        getenvDefault("RPC_ENDPOINT", "https://api.devnet.solana.com"),
		ProgramID:          os.Getenv("PROGRAM_ID"),
		RPCQPS:             getenvFloatDefault("RPC_QPS", 20),
		Cluster:            getenvDefault("CLUSTER", "devnet"),
		DefaultSigner:      getenvDefault("DEFAULT_SIGNER", "default"),
		IdentityURL:        os.Getenv("IDENTITY_URL"),
		RatePoints:         getenvIntDefault("RATE_POINTS", 10),
		RateWindow:         getenvDurationDefault("RATE_WINDOW", 1*time.Second),
		DownstreamTimeout:  getenvDurationDefault("DOWNSTREAM_TIMEOUT", 10*time.Second),
		StatsRedisAddr:     os.Getenv("STATS_REDIS_ADDR"),
		StatsRedisPassword: os.Getenv("STATS_REDIS_PASSWORD"),
		StatsRedisDB:       getenvIntDefault("STATS_REDIS_DB", 0),
		JournalDSN:         os.Getenv("JOURNAL_DSN"),
	}

	signers, err := parseSigners(os.Getenv("SIGNERS"))
	if err != nil {
		return Config{}, err
	}
	cfg.Signers = signers

	if cfg.ProgramID == "" {
		return Config{}, errors.New("PROGRAM_ID is required")
	}
	if cfg.RatePoints <= 0 {
		return Config{}, errors.New("RATE_POINTS must be > 0")
	}
	if cfg.RateWindow <= 0 {
		return Config{}, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.RPCQPS <= 0 {
		return Config{}, errors.New("RPC_QPS must be > 0")
	}

	return cfg, nil
}

// parseSigners reads "name=base58key,name2=base58key2". An empty value is
// allowed: the gateway then refuses state-changing operations at runtime.
func parseSigners(raw string) (map[string]string, error) {
	signers := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return signers, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, key, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		key = strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid SIGNERS entry %q", pair)
		}
		if _, dup := signers[name]; dup {
			return nil, fmt.Errorf("duplicate signer name %q", name)
		}
		signers[name] = key
	}
	return signers, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
