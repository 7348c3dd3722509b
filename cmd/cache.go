package cmd

import (
	"context"
	"log"

	"github.com/skillscope/skillscope/internal/analysis"
	"github.com/skillscope/skillscope/internal/cache"
	"github.com/skillscope/skillscope/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var flushPrompt = promptui.Select{
	Label: "Flush the whole cache?",
	Items: []string{PromptYes, PromptNo},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached analysis results",
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete [query]",
	Short: "Delete the cached result for one query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("count")
		cacheDelete(args[0], count)
	},
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Delete every cached result",
	Run: func(cmd *cobra.Command, _ []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		cacheFlush(yes)
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheFlushCmd)

	cacheDeleteCmd.Flags().IntP("count", "c", 100, "posting count the cached result was computed for")
	cacheFlushCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func newCacheStore() (*cache.Redis, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store := cache.NewRedis(redisURL(config), logger)
	if !store.Enabled() {
		logger.Fatal("redis is unreachable, nothing to manage")
	}

	return store, logger
}

func cacheDelete(query string, count int) {
	store, logger := newCacheStore()
	defer store.Close()

	key := analysis.Key(query, count)
	if err := store.Delete(context.Background(), key); err != nil {
		logger.Fatal("deleting cache entry", zap.String("key", key), zap.Error(err))
	}

	logger.Info("cache entry deleted", zap.String("key", key))
}

func cacheFlush(autoApprove bool) {
	store, logger := newCacheStore()
	defer store.Close()

	if !autoApprove {
		_, action, err := flushPrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	if err := store.FlushAll(context.Background()); err != nil {
		logger.Fatal("flushing cache", zap.Error(err))
	}

	logger.Info("cache flushed")
}
