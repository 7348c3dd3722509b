package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "skillscope"
)

type Config struct {
	FranceTravail *FranceTravailConfig `mapstructure:"france-travail"`
	AI            *AIConfig            `mapstructure:"ai"`
	Redis         *RedisConfig         `mapstructure:"redis"`
	Server        *ServerConfig        `mapstructure:"server"`
	Analysis      *AnalysisConfig      `mapstructure:"analysis"`
}

type FranceTravailConfig struct {
	ClientID         string `mapstructure:"client-id"`
	ClientIDFile     string `mapstructure:"client-id-file"`
	ClientSecret     string `mapstructure:"client-secret"`
	ClientSecretFile string `mapstructure:"client-secret-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type AnalysisConfig struct {
	BatchSize    int `mapstructure:"batch-size"`
	TopSkills    int `mapstructure:"top-skills"`
	MaxParallel  int `mapstructure:"max-parallel"`
	CacheTTLDays int `mapstructure:"cache-ttl-days"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "skillscope analyzes France Travail job postings and ranks the skills employers ask for",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envBinds := map[string]string{
		"france-travail.client-id":     "FT_CLIENT_ID",
		"france-travail.client-secret": "FT_CLIENT_SECRET",
		"ai.gemini.api-key":            "GEMINI_API_KEY",
		"redis.url":                    "REDIS_URL",
		"server.port":                  "PORT",
		"production":                   "SKILLSCOPE_PRODUCTION",
	}
	for key, env := range envBinds {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is skillscope.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// The config file is optional: everything can come from the
	// environment. An explicitly named file must still parse.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config == nil {
		config = &Config{}
	}

	return config, nil
}
