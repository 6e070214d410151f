// Package config reads service settings from the environment with typed defaults.
package config

import (
	"errand-route-service/internal/adapters/cache"
	"errand-route-service/internal/services"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP struct {
		Addr         string
		WriteTimeout time.Duration
	}
	Provider struct {
		// Name is "google" or "ors".
		Name          string
		GoogleKey     string
		GoogleBaseURL string
		Language      string
		ORSKey        string
		ORSBaseURL    string
		Timeout       time.Duration
	}
	Cache struct {
		// Store is one of none, file, sqlite, postgres or redis.
		Store        string
		FilePath     string
		SqlitePath   string
		DatabaseURL  string
		RedisAddr    string
		RedisKey     string
		TTL          time.Duration
		MaxEntries   int
		PersistEvery int
	}
	Limiter struct {
		MaxCalls int
		Window   time.Duration
	}
	Solver struct {
		Enabled  bool
		MaxNodes int
	}
	Route     services.RouteClientConfig
	Matrix    services.MatrixBuilderConfig
	Optimizer services.OptimizerConfig
	Category  services.CategoryConfig
	Resolver  services.ResolverConfig
}

// Load reads every setting, falling back to defaults for unset or unparsable values.
func Load() (Config, error) {
	var cfg Config

	cfg.HTTP.Addr = Get("HTTP_ADDR", ":"+Get("PORT", "8080"))
	cfg.HTTP.WriteTimeout = GetDuration("HTTP_WRITE_TIMEOUT", 180*time.Second)

	cfg.Provider.Name = strings.ToLower(Get("ROUTE_PROVIDER", "ors"))
	cfg.Provider.GoogleKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	cfg.Provider.GoogleBaseURL = os.Getenv("GOOGLE_MAPS_BASE_URL")
	cfg.Provider.Language = Get("ROUTE_LANGUAGE", "en")
	cfg.Provider.ORSKey = os.Getenv("ORS_API_KEY")
	cfg.Provider.ORSBaseURL = os.Getenv("ORS_BASE_URL")
	cfg.Provider.Timeout = GetDuration("PROVIDER_TIMEOUT", 15*time.Second)

	cfg.Cache.Store = strings.ToLower(Get("CACHE_STORE", "file"))
	cfg.Cache.FilePath = Get("CACHE_FILE", "data/distance_cache.jsonl")
	cfg.Cache.SqlitePath = Get("CACHE_SQLITE_PATH", "data/app.db")
	cfg.Cache.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.Cache.RedisAddr = Get("REDIS_ADDR", "localhost:6379")
	cfg.Cache.RedisKey = Get("CACHE_REDIS_KEY", cache.DefaultRedisKey)
	cfg.Cache.TTL = GetDuration("CACHE_TTL", cache.DefaultTTL)
	cfg.Cache.MaxEntries = GetInt("CACHE_MAX_ENTRIES", cache.DefaultMaxEntries)
	cfg.Cache.PersistEvery = GetInt("CACHE_PERSIST_EVERY", cache.DefaultPersistEvery)

	cfg.Limiter.MaxCalls = GetInt("RATE_LIMIT_CALLS", 3)
	cfg.Limiter.Window = GetDuration("RATE_LIMIT_WINDOW", time.Second)

	cfg.Solver.Enabled = GetBool("SOLVER_ENABLED", true)
	cfg.Solver.MaxNodes = GetInt("SOLVER_MAX_NODES", 20)

	rc := services.DefaultRouteClientConfig()
	rc.MaxRetries = GetInt("ROUTE_MAX_RETRIES", rc.MaxRetries)
	rc.BaseBackoff = GetDuration("ROUTE_BASE_BACKOFF", rc.BaseBackoff)
	rc.QuotaBackoffMultiplier = GetInt("ROUTE_QUOTA_BACKOFF_MULTIPLIER", rc.QuotaBackoffMultiplier)
	rc.DisableFallback = GetBool("ROUTE_DISABLE_FALLBACK", rc.DisableFallback)
	rc.MinFallbackDuration = GetDuration("ROUTE_MIN_FALLBACK_DURATION", rc.MinFallbackDuration)
	cfg.Route = rc

	mb := services.DefaultMatrixBuilderConfig()
	mb.Workers = GetInt("MATRIX_WORKERS", mb.Workers)
	mb.LookupTimeout = GetDuration("MATRIX_LOOKUP_TIMEOUT", mb.LookupTimeout)
	mb.BuildTimeout = GetDuration("MATRIX_BUILD_TIMEOUT", mb.BuildTimeout)
	mb.Symmetric = GetBool("MATRIX_SYMMETRIC", mb.Symmetric)
	cfg.Matrix = mb

	op := services.DefaultOptimizerConfig()
	op.TopK = GetInt("OPT_TOP_K", op.TopK)
	op.ExactMax = GetInt("OPT_EXACT_MAX", op.ExactMax)
	op.SolverMax = GetInt("OPT_SOLVER_MAX", op.SolverMax)
	op.GeneticMax = GetInt("OPT_GENETIC_MAX", op.GeneticMax)
	op.ExactHardLimit = GetInt("OPT_EXACT_HARD_LIMIT", op.ExactHardLimit)
	op.MaxDestinations = GetInt("OPT_MAX_DESTINATIONS", op.MaxDestinations)
	op.TwoOptMaxIterations = GetInt("OPT_TWO_OPT_MAX_ITERATIONS", op.TwoOptMaxIterations)
	op.GAPopulation = GetInt("GA_POPULATION", op.GAPopulation)
	op.GAGenerations = GetInt("GA_GENERATIONS", op.GAGenerations)
	op.GAMutationRate = GetFloat("GA_MUTATION_RATE", op.GAMutationRate)
	op.Seed = uint64(GetInt("OPT_SEED", int(op.Seed)))
	op.DefaultBudget = GetDuration("OPT_BUDGET", op.DefaultBudget)
	cfg.Optimizer = op

	cc := services.DefaultCategoryConfig()
	cc.MaxCandidatesPerCategory = GetInt("CATEGORY_MAX_CANDIDATES", cc.MaxCandidatesPerCategory)
	cc.MaxCandidateRadiusMeters = GetFloat("CATEGORY_RADIUS_METERS", cc.MaxCandidateRadiusMeters)
	cc.MaxCombinations = GetInt("CATEGORY_MAX_COMBINATIONS", cc.MaxCombinations)
	cc.TrimmedCandidates = GetInt("CATEGORY_TRIMMED_CANDIDATES", cc.TrimmedCandidates)
	cc.SmallCaseMaxCombinations = GetInt("CATEGORY_SMALL_CASE_MAX", cc.SmallCaseMaxCombinations)
	cc.RandomRounds = GetInt("CATEGORY_RANDOM_ROUNDS", cc.RandomRounds)
	cc.LocalSearchRounds = GetInt("CATEGORY_LOCAL_SEARCH_ROUNDS", cc.LocalSearchRounds)
	cc.TopK = op.TopK
	cc.Seed = op.Seed
	cc.DefaultBudget = GetDuration("CATEGORY_BUDGET", cc.DefaultBudget)
	cfg.Category = cc

	rv := services.DefaultResolverConfig()
	rv.SearchLimit = GetInt("SEARCH_LIMIT", rv.SearchLimit)
	rv.SearchRadiusMeters = GetInt("SEARCH_RADIUS_METERS", rv.SearchRadiusMeters)
	rv.DefaultDwell = GetDuration("DEFAULT_DWELL", rv.DefaultDwell)
	rv.Workers = mb.Workers
	cfg.Resolver = rv

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Provider.Name {
	case "google":
		if strings.TrimSpace(c.Provider.GoogleKey) == "" {
			return fmt.Errorf("config: GOOGLE_MAPS_API_KEY is required for provider google")
		}
	case "ors":
		if strings.TrimSpace(c.Provider.ORSKey) == "" {
			return fmt.Errorf("config: ORS_API_KEY is required for provider ors")
		}
	default:
		return fmt.Errorf("config: unknown ROUTE_PROVIDER %q", c.Provider.Name)
	}

	switch c.Cache.Store {
	case "none", "file", "sqlite", "redis":
	case "postgres":
		if strings.TrimSpace(c.Cache.DatabaseURL) == "" {
			return fmt.Errorf("config: DATABASE_URL is required for cache store postgres")
		}
	default:
		return fmt.Errorf("config: unknown CACHE_STORE %q", c.Cache.Store)
	}

	if c.Limiter.MaxCalls <= 0 || c.Limiter.Window <= 0 {
		return fmt.Errorf("config: rate limit must be positive, got %d per %s", c.Limiter.MaxCalls, c.Limiter.Window)
	}
	return nil
}

// Get returns the environment value for key or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return n
}

func GetFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return f
}

// GetDuration accepts Go duration strings ("90s", "24h") or plain seconds.
func GetDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config: ignoring %s=%q: not a duration", key, v)
	return fallback
}

func GetBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return b
}
