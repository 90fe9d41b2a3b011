package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "collab-matcher"
	envPrefix = "COLLAB"
)

type Config struct {
	Matching      MatchingConfig      `mapstructure:"matching"`
	AI            AIConfig            `mapstructure:"ai"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Server        ServerConfig        `mapstructure:"server"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
}

type MatchingConfig struct {
	// AIEnabled toggles the vector path; explanations follow ai.enabled.
	AIEnabled          bool   `mapstructure:"ai-enabled"`
	TopK               int    `mapstructure:"top-k"`
	VectorBackend      string `mapstructure:"vector-backend"`
	CandidateLimit     int    `mapstructure:"candidate-limit"`
	NumCandidates      int    `mapstructure:"num-candidates"`
	ExplainConcurrency int    `mapstructure:"explain-concurrency"`
}

type AIConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Provider string       `mapstructure:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey         string        `mapstructure:"api-key"`
	APIKeyFile     string        `mapstructure:"api-key-file"`
	EmbeddingModel string        `mapstructure:"embedding-model"`
	ChatModel      string        `mapstructure:"chat-model"`
	Dimensions     int           `mapstructure:"dimensions"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max-retries"`
	MaxLogLength   int           `mapstructure:"max-log-length"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max-conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

type EmbeddingConfig struct {
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch-size"`
}

const (
	backendPostgres      = "postgres"
	backendElasticsearch = "elasticsearch"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "collab-matcher ranks collaborators for startup projects",
		Long: "collab-matcher ranks collaborators for a project's open roles using vector search with " +
			"AI explanations, and falls back to deterministic keyword scoring when AI is unavailable.",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is collab-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("matching.ai-enabled", true)
	v.SetDefault("matching.top-k", 10)
	v.SetDefault("matching.vector-backend", backendPostgres)
	v.SetDefault("matching.candidate-limit", 100)
	v.SetDefault("matching.num-candidates", 200)
	v.SetDefault("matching.explain-concurrency", 4)

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.embedding-model", "text-embedding-004")
	v.SetDefault("ai.gemini.chat-model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.dimensions", 768)
	v.SetDefault("ai.gemini.timeout", 15*time.Second)
	v.SetDefault("ai.gemini.max-retries", 2)
	v.SetDefault("ai.gemini.max-log-length", 200)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max-conns", 10)
	v.SetDefault("database.migrate", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("elasticsearch.addresses", []string{})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index", "collab-profiles")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown-timeout", 10*time.Second)

	v.SetDefault("embedding.schedule", "")
	v.SetDefault("embedding.batch-size", 50)
}

// bindEnv wires COLLAB_* variables plus the conventional unprefixed names.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	explicit := map[string][]string{
		"ai.gemini.api-key-file": {"COLLAB_AI_GEMINI_API_KEY_FILE", "GEMINI_API_KEY_FILE"},
		"database.url":           {"COLLAB_DATABASE_URL", "DATABASE_URL"},
		"redis.url":              {"COLLAB_REDIS_URL", "REDIS_URL"},
	}
	for key, envs := range explicit {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

func initConfig() {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	if err := bindEnv(viper.GetViper()); err != nil {
		cobra.CheckErr(err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("reading config: %w", err))
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Matching.VectorBackend = strings.ToLower(strings.TrimSpace(config.Matching.VectorBackend))
	switch config.Matching.VectorBackend {
	case backendPostgres, backendElasticsearch:
	default:
		return nil, fmt.Errorf("unsupported matching.vector-backend %q", config.Matching.VectorBackend)
	}

	return &config, nil
}
