package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/internal/version"
	"github.com/marku123123/petpals-new/match"
	"github.com/marku123123/petpals-new/server"
	"github.com/marku123123/petpals-new/store"
	"github.com/marku123123/petpals-new/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "petpals",
	Short: `A lost-and-found pet matching service. Report lost or found dogs and let image similarity pair them up.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution (not when running as systemd service).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			Addr:        viper.GetString("addr"),
			Port:        viper.GetInt("port"),
			UNIXSock:    viper.GetString("unix-sock"),
			Data:        viper.GetString("data"),
			Driver:      viper.GetString("driver"),
			DSN:         viper.GetString("dsn"),
			InstanceURL: viper.GetString("instance-url"),
			Version:     version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}
		if instanceProfile.InstanceURL == "" {
			instanceProfile.InstanceURL = fmt.Sprintf("http://localhost:%d", instanceProfile.Port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			cancel()
			slog.Error("failed to create db driver", "error", err)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			cancel()
			slog.Error("failed to migrate", "error", err)
			return
		}

		registry := prometheus.NewRegistry()
		engine, err := newMatchEngine(instanceProfile, storeInstance, registry)
		if err != nil {
			cancel()
			slog.Error("failed to create matching engine", "error", err)
			return
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, engine, registry)
		if err != nil {
			cancel()
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		signal.Notify(c, terminationSignals...)

		go func() {
			if err := s.Start(ctx); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					slog.Error("failed to start server", "error", err)
					cancel()
				}
			}
		}()

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		// Wait for CTRL-C.
		<-ctx.Done()
	},
}

// newMatchEngine assembles the matching pipeline around the store and the
// configured embedding backend.
func newMatchEngine(instanceProfile *profile.Profile, storeInstance *store.Store, registry *prometheus.Registry) (*match.Engine, error) {
	// Without an embedding backend the engine still runs, matching exact
	// duplicates by content hash only.
	var embedder match.ImageEmbedder
	if instanceProfile.IsMatchingEnabled() {
		var err error
		embedder, err = match.NewEmbedder(instanceProfile)
		if err != nil {
			return nil, err
		}
	} else {
		slog.Warn("embedding backend not configured, matching falls back to exact duplicates")
	}

	cacheDir := filepath.Join(instanceProfile.Data, "imagecache")
	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		return nil, err
	}

	var cache match.FingerprintCache
	if instanceProfile.FingerprintCache {
		cache = storeInstance
	}

	fetcher := match.NewFetcher(instanceProfile.InstanceURL, cacheDir, instanceProfile.FetchRateLimit)
	extractor := match.NewExtractor(embedder, cache, instanceProfile.EmbeddingModel)
	matcher := match.NewMatcher(instanceProfile.MatchThreshold, match.HistogramScorer{})
	metrics := match.NewMetrics(registry)

	return match.NewEngine(storeInstance, fetcher, extractor, matcher, instanceProfile.MatchConcurrency, metrics)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 25000)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 25000, "port of server")
	rootCmd.PersistentFlags().String("unix-sock", "", "path to the unix socket, overrides --addr and --port")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your petpals instance")

	for _, flag := range []string{"mode", "addr", "port", "unix-sock", "data", "driver", "dsn", "instance-url"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("petpals")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("PetPals %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.UNIXSock) == 0 {
		if len(profile.Addr) == 0 {
			fmt.Printf("Server running on port %d\n", profile.Port)
		} else {
			fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		}
	} else {
		fmt.Printf("Server running on unix socket: %s\n", profile.UNIXSock)
	}

	if !profile.IsMatchingEnabled() {
		fmt.Println("Embedding backend not configured: only exact-duplicate matching is available")
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
