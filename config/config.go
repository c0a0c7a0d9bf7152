package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Pipeline carries everything the matching stages need. It is constructed
// once in main and passed by reference into each stage constructor.
type Pipeline struct {
	// Driver is "postgres" or "sqlite3".
	Driver string
	// SeatDSN is the working database (seat_data table).
	SeatDSN string
	// MasterDSN is the reference database (colleges, link tables, FTS).
	// Empty means the reference tables live in the seat database.
	MasterDSN string

	Table       string
	WorkerCount int
	MaxRounds   int
	DryRun      bool
	Validate    bool
	Council     bool
	CouncilSize int

	// Models is the priority-ordered model list for stage 3.
	Models []string
	// APIKeys are the Gemini credentials (GEMINI_API_KEY_1..N).
	APIKeys []string

	Diploma DiplomaConfig
}

// DefaultModels is the priority order used when MATCH_MODELS is unset.
var DefaultModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
	"gemini-1.5-pro",
	"gemini-2.0-flash-exp",
}

// Load reads .env, environment variables, and the diploma YAML config.
func Load(yamlPath string) (*Pipeline, error) {
	// .env is optional; environment may already be populated.
	_ = godotenv.Load()

	cfg := &Pipeline{
		Driver:      envOr("DB_DRIVER", "postgres"),
		SeatDSN:     os.Getenv("SEAT_DB_DSN"),
		MasterDSN:   os.Getenv("MASTER_DB_DSN"),
		Table:       envOr("SEAT_TABLE", "seat_data"),
		WorkerCount: envIntOr("WORKER_COUNT", 4),
		MaxRounds:   envIntOr("MAX_ROUNDS", 3),
		Validate:    true,
		CouncilSize: envIntOr("COUNCIL_SIZE", 3),
		Models:      envModels("MATCH_MODELS"),
	}

	if cfg.SeatDSN == "" {
		return nil, fmt.Errorf("SEAT_DB_DSN not set")
	}

	for i := 1; ; i++ {
		key := os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i))
		if key == "" {
			break
		}
		cfg.APIKeys = append(cfg.APIKeys, key)
	}
	if len(cfg.APIKeys) == 0 {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.APIKeys = append(cfg.APIKeys, key)
		}
	}

	if yamlPath != "" {
		diploma, err := LoadDiploma(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("loading diploma config: %w", err)
		}
		cfg.Diploma = diploma
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envModels parses a comma-separated model list, falling back to
// DefaultModels when the variable is unset or empty.
func envModels(key string) []string {
	var models []string
	for _, m := range strings.Split(os.Getenv(key), ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return DefaultModels
	}
	return models
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
