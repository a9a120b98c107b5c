package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Clustering policies applied when generation keeps failing.
const (
	PolicyStrict  = "strict"
	PolicyLenient = "lenient"
)

// Generator modes.
const (
	ModeLive     = "live"
	ModeFallback = "fallback"
)

type Config struct {
	Database struct {
		Driver string
		URL    string
	}
	Server struct {
		Port int
	}
	Fetcher struct {
		UserAgent   string
		Accept      string
		Timeout     string
		MaxBodySize int
	}
	Parser struct {
		MaxIndexEntries int
		MaxDepth        int
	}
	Clustering struct {
		BatchSize         int
		MaxRetries        int
		RetryDelay        string
		MergeThreshold    float64
		SmallerBatchRetry bool
		Policy            string
		Mode              string
	}
	Generator struct {
		Provider    string
		Model       string
		APIKey      string
		APIURL      string
		Temperature float64
		MaxTokens   int
		Timeout     string
	}
	Scheduler struct {
		Interval      string
		MaxConcurrent int
	}
	Log struct {
		Level string
		Dir   string
		File  string
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "sitemap_clusters.db")
	v.SetDefault("server.port", 8080)

	v.SetDefault("fetcher.useragent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetcher.accept", "text/html,application/xml,application/xhtml+xml,text/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("fetcher.timeout", "30s")
	v.SetDefault("fetcher.maxbodysize", 50*1024*1024)

	v.SetDefault("parser.maxindexentries", 3)
	v.SetDefault("parser.maxdepth", 5)

	v.SetDefault("clustering.batchsize", 100)
	v.SetDefault("clustering.maxretries", 3)
	v.SetDefault("clustering.retrydelay", "2s")
	v.SetDefault("clustering.mergethreshold", 0.8)
	v.SetDefault("clustering.smallerbatchretry", true)
	v.SetDefault("clustering.policy", PolicyStrict)
	v.SetDefault("clustering.mode", ModeLive)

	v.SetDefault("generator.provider", "openai")
	v.SetDefault("generator.model", "gpt-4o")
	v.SetDefault("generator.apikey", "")
	v.SetDefault("generator.apiurl", "https://api.openai.com/v1")
	v.SetDefault("generator.temperature", 0.5)
	v.SetDefault("generator.maxtokens", 2000)
	v.SetDefault("generator.timeout", "120s")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.maxconcurrent", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")
}

// LoadConfig reads config.yaml from . or ./config. A missing file is not an
// error; defaults and SITEMAP_* environment variables still apply.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("SITEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Clustering.Policy {
	case PolicyStrict, PolicyLenient:
	default:
		return fmt.Errorf("invalid clustering policy %q", c.Clustering.Policy)
	}
	switch c.Clustering.Mode {
	case ModeLive, ModeFallback:
	default:
		return fmt.Errorf("invalid clustering mode %q", c.Clustering.Mode)
	}
	if c.Clustering.BatchSize <= 0 {
		return fmt.Errorf("clustering batch size must be positive, got %d", c.Clustering.BatchSize)
	}
	if c.Clustering.MaxRetries < 0 {
		return fmt.Errorf("clustering max retries must not be negative, got %d", c.Clustering.MaxRetries)
	}
	if c.Clustering.MergeThreshold <= 0 || c.Clustering.MergeThreshold > 1 {
		return fmt.Errorf("merge threshold must be in (0, 1], got %v", c.Clustering.MergeThreshold)
	}
	if c.Parser.MaxIndexEntries < 0 {
		return fmt.Errorf("parser max index entries must not be negative, got %d", c.Parser.MaxIndexEntries)
	}
	return nil
}

// UseFallbackGenerator reports whether the deterministic generator should be used.
func (c *Config) UseFallbackGenerator() bool {
	return c.Clustering.Mode == ModeFallback || c.Generator.APIKey == ""
}

func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.Fetcher.Timeout, 30*time.Second)
}

func (c *Config) RetryDelay() time.Duration {
	return parseDuration(c.Clustering.RetryDelay, 2*time.Second)
}

func (c *Config) GeneratorTimeout() time.Duration {
	return parseDuration(c.Generator.Timeout, 120*time.Second)
}

func (c *Config) SchedulerInterval() time.Duration {
	return parseDuration(c.Scheduler.Interval, time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}
