package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible multimodal embedding endpoint)
	EmbeddingProvider string // Provider identifier: siliconflow, openai, jina, ollama
	EmbeddingModel    string // Model name, e.g. jinaai/jina-clip-v2
	EmbeddingAPIKey   string // Embedding API key
	EmbeddingBaseURL  string // Embedding base URL (optional, has default per provider)
	EmbeddingDim      int    // Embedding vector dimension

	// Matching configuration
	MatchThreshold   float64 // Similarity percentage cutoff for candidates (default 80)
	MatchConcurrency int     // Max concurrent fingerprint tasks per pass
	FetchRateLimit   float64 // Image fetches per second against the upload store
	FingerprintCache bool    // Persist fingerprints keyed by (pet_id, content_hash)

	// Other configurations
	Mode        string
	Addr        string
	Port        int
	UNIXSock    string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string
}

// Provider default base URLs for the embedding endpoint.
// Used when PETPALS_EMBEDDING_BASE_URL is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-vl-base",
	},
	"jina": {
		BaseURL: "https://api.jina.ai/v1",
		Model:   "jina-clip-v2",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "image-embedding-3",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "clip-vit-base-patch32",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsMatchingEnabled returns true if the embedding endpoint is configured.
// Without an embedder only the exact-duplicate path of matching can run.
func (p *Profile) IsMatchingEnabled() bool {
	return p.EmbeddingAPIKey != "" || p.EmbeddingProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("PETPALS_EMBEDDING_PROVIDER", "siliconflow")
	p.EmbeddingModel = getEnvOrDefault("PETPALS_EMBEDDING_MODEL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("PETPALS_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("PETPALS_EMBEDDING_BASE_URL", "")
	p.EmbeddingDim = getEnvOrDefaultInt("PETPALS_EMBEDDING_DIM", 1024)

	if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
		slog.Warn("Unknown embedding provider, using default: siliconflow", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "siliconflow"
	}
	if defaults, ok := embeddingProviderDefaults[p.EmbeddingProvider]; ok {
		if p.EmbeddingBaseURL == "" {
			p.EmbeddingBaseURL = defaults.BaseURL
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = defaults.Model
		}
	}

	p.MatchThreshold = getEnvOrDefaultFloat("PETPALS_MATCH_THRESHOLD", 80)
	p.MatchConcurrency = getEnvOrDefaultInt("PETPALS_MATCH_CONCURRENCY", 4)
	p.FetchRateLimit = getEnvOrDefaultFloat("PETPALS_FETCH_RATE_LIMIT", 20)
	p.FingerprintCache = getEnvOrDefault("PETPALS_FINGERPRINT_CACHE", "false") == "true"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "petpals")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/petpals"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("petpals_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	// Zero is rejected rather than treated as accept-all: the matcher falls
	// back to its default on a zero threshold, so an operator asking for 0
	// would silently get 80 instead.
	if p.MatchThreshold <= 0 || p.MatchThreshold > 100 {
		return errors.Errorf("match threshold must be within (0,100], got %f", p.MatchThreshold)
	}
	if p.MatchConcurrency <= 0 {
		p.MatchConcurrency = 4
	}

	return nil
}
