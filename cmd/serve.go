package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/ai/gemini"
	"github.com/skillscope/skillscope/internal/analysis"
	"github.com/skillscope/skillscope/internal/cache"
	"github.com/skillscope/skillscope/internal/francetravail"
	"github.com/skillscope/skillscope/internal/logger"
	"github.com/skillscope/skillscope/internal/secrets"
	"github.com/skillscope/skillscope/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultPort     = "8080"
	defaultRedisURL = "redis://localhost:6379/0"

	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the skillscope HTTP server",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "", "port to listen on")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func serve() {
	ctx := context.Background()

	// Debug output is never enabled on production deployments.
	debug := viper.GetBool("debug") && !viper.GetBool("production")

	logger, err := logger.New(viper.GetBool("json"), debug)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting skillscope", zap.String("version", version))

	clientID, clientSecret, err := resolveFranceTravailCredentials(config)
	if err != nil {
		logger.Fatal("loading france travail credentials",
			zap.Error(err),
			zap.String("hint", "set FT_CLIENT_ID and FT_CLIENT_SECRET or the france-travail section in the configuration file"),
		)
	}

	source := francetravail.New(clientID, clientSecret, logger)

	extractor, err := newExtractor(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the skill extractor", zap.Error(err))
	}

	store := cache.NewRedis(redisURL(config), logger)
	defer store.Close()

	aggregator := analysis.New(source, extractor, store, logger, analysisConfig(config))
	aggregator.SetProgress(func(e analysis.ProgressEvent) {
		logger.Info("batch finished",
			zap.String("key", e.Key),
			zap.Int("batch", e.Batch),
			zap.Int("batches", e.Batches),
			zap.Int("postings", e.Postings),
		)
	})

	srv := server.New(aggregator, store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(listenAddr(config))
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}
}

func resolveFranceTravailCredentials(config *Config) (string, string, error) {
	ft := config.FranceTravail
	if ft == nil {
		ft = &FranceTravailConfig{}
	}

	clientID, err := secrets.Load(secrets.Source{
		Name:  "france travail client id",
		Value: ft.ClientID,
		File:  ft.ClientIDFile,
		Env:   "FT_CLIENT_ID",
	})
	if err != nil {
		return "", "", err
	}

	clientSecret, err := secrets.Load(secrets.Source{
		Name:  "france travail client secret",
		Value: ft.ClientSecret,
		File:  ft.ClientSecretFile,
		Env:   "FT_CLIENT_SECRET",
	})
	if err != nil {
		return "", "", err
	}

	return clientID, clientSecret, nil
}

func newExtractor(ctx context.Context, config *Config, log *zap.Logger) (ai.Extractor, error) {
	aiCfg := config.AI
	if aiCfg == nil {
		aiCfg = &AIConfig{}
	}

	provider := strings.TrimSpace(strings.ToLower(aiCfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	geminiCfg := aiCfg.Gemini
	if geminiCfg == nil {
		geminiCfg = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: geminiCfg.APIKey,
		File:  geminiCfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set GEMINI_API_KEY or ai.gemini.api-key-file)", err)
	}

	genLogger := logger.WithCommonFields(log, "gemini", geminiCfg.Model)

	generator, err := gemini.NewGenerator(ctx, apiKey, geminiCfg.Model, geminiCfg.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	extLogger := logger.WithCommonFields(log, "gemini", generator.Model())

	return gemini.NewExtractor(generator, extLogger, geminiCfg.MaxLogLength), nil
}

func redisURL(config *Config) string {
	if config.Redis != nil && config.Redis.URL != "" {
		return config.Redis.URL
	}
	return defaultRedisURL
}

func listenAddr(config *Config) string {
	port := defaultPort
	if config.Server != nil && config.Server.Port != "" {
		port = config.Server.Port
	}
	return ":" + port
}

func analysisConfig(config *Config) analysis.Config {
	cfg := analysis.Config{}
	if config.Analysis == nil {
		return cfg
	}

	cfg.BatchSize = config.Analysis.BatchSize
	cfg.TopSkills = config.Analysis.TopSkills
	cfg.MaxParallel = config.Analysis.MaxParallel
	if config.Analysis.CacheTTLDays > 0 {
		cfg.CacheTTL = time.Duration(config.Analysis.CacheTTLDays) * 24 * time.Hour
	}

	return cfg
}
