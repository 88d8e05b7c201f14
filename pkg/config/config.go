package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zones must resolve on minimal images

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		AllowedOrigins  []string      `yaml:"allowed_origins"` // websocket; empty allows all
		RateLimit       struct {
			Enabled bool          `yaml:"enabled" default:"true"`
			Mode    string        `yaml:"mode" default:"local"` // local or shared
			RPS     float64       `yaml:"rps" default:"5"`
			Burst   int           `yaml:"burst" default:"10"`
			Window  time.Duration `yaml:"window" default:"1m"` // shared mode only
			Limit   int           `yaml:"limit" default:"120"` // shared mode only
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Query struct {
		DefaultMarket  string   `yaml:"default_market" default:"DAM"`
		DefaultStat    string   `yaml:"default_stat" default:"twap"`
		EnabledMarkets []string `yaml:"enabled_markets" default:"[\"DAM\",\"GDAM\",\"RTM\"]"`
		Timezone       string   `yaml:"timezone" default:"Asia/Kolkata"`
	} `yaml:"query"`
	Fallback struct {
		Enabled     bool          `yaml:"enabled" default:"true"` // needs api_key as well
		APIKey      string        `yaml:"api_key"`
		BaseURL     string        `yaml:"base_url" default:"https://api.openai.com/v1"`
		Model       string        `yaml:"model" default:"gpt-4o-mini"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		Retries     int           `yaml:"retries" default:"2"`
		Temperature float32       `yaml:"temperature" default:"0.1"`
	} `yaml:"fallback"`
	Backend struct {
		Type         string        `yaml:"type" default:"postgres"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"20s"`
	} `yaml:"backend"`
	Postgres struct {
		URL            string        `yaml:"url"`
		MaxConns       int32         `yaml:"max_conns" default:"10"`
		MinConns       int32         `yaml:"min_conns" default:"1"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"emspark"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Cache struct {
		Enabled       bool          `yaml:"enabled"`
		MemoryOnly    bool          `yaml:"memory_only"`
		HistoricalTTL time.Duration `yaml:"historical_ttl" default:"24h"`
		RecentTTL     time.Duration `yaml:"recent_ttl" default:"5m"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"512"`
		Redis         struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size" default:"10"`
			Prefix   string `yaml:"prefix" default:"emspark"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Events   string `yaml:"events" default:"emspark.query-events"`
			Requests string `yaml:"requests" default:"emspark.report-requests"`
			Results  string `yaml:"results" default:"emspark.report-results"`
			Logs     string `yaml:"logs" default:"emspark.error-logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"emspark-reports"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"emspark.report-requests.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	// Queue is the Redis work queue for async reports when Kafka is off.
	Queue struct {
		Enabled      bool          `yaml:"enabled"`
		Workers      int           `yaml:"workers" default:"2"`
		RetryLimit   int           `yaml:"retry_limit" default:"3"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"10s"`
		PollInterval time.Duration `yaml:"poll_interval" default:"5s"`
		KeyPrefix    string        `yaml:"key_prefix" default:"emspark:queue"`
	} `yaml:"queue"`
	Report struct {
		Markets       []string      `yaml:"markets" default:"[\"DAM\",\"GDAM\",\"RTM\"]"`
		Timeout       time.Duration `yaml:"timeout" default:"45s"`
		Derivatives   bool          `yaml:"derivatives" default:"true"`
		MaxSpanDays   int           `yaml:"max_span_days" default:"1100"`
		AutoAddGDAM   bool          `yaml:"auto_add_gdam" default:"true"`
		MaxListedRows int           `yaml:"max_listed_rows" default:"96"`
	} `yaml:"report"`
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing file is not an error: defaults plus environment are used.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = strings.Split(v, ",")
		}
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("EMSPARK_ENV", &c.Environment)
	str("BACKEND", &c.Backend.Type)
	str("DATABASE_URL", &c.Postgres.URL)
	str("OPENAI_API_KEY", &c.Fallback.APIKey)
	str("OPENAI_BASE_URL", &c.Fallback.BaseURL)
	str("EMSPARK_LLM_MODEL", &c.Fallback.Model)
	str("EMSPARK_LOG_LEVEL", &c.Logging.Level)
	str("EMSPARK_REDIS_ADDR", &c.Cache.Redis.Addr)
	str("EMSPARK_DEFAULT_MARKET", &c.Query.DefaultMarket)
	list("EMSPARK_ENABLED_MARKETS", &c.Query.EnabledMarkets)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	if v, ok := lookup("EMSPARK_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env EMSPARK_PORT: %w", err)
		}
		c.Server.Port = port
	}
	for key, dst := range map[string]*bool{
		"EMSPARK_FALLBACK_ENABLED": &c.Fallback.Enabled,
		"EMSPARK_CACHE_ENABLED":    &c.Cache.Enabled,
		"EMSPARK_KAFKA_ENABLED":    &c.Kafka.Enabled,
		"EMSPARK_QUEUE_ENABLED":    &c.Queue.Enabled,
	} {
		if err := flag(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Backend.Type {
	case "postgres", "clickhouse":
	default:
		return fmt.Errorf("backend.type must be 'postgres' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Server.RateLimit.Mode != "local" && c.Server.RateLimit.Mode != "shared" {
		return fmt.Errorf("server.rate_limit.mode must be 'local' or 'shared', got '%s'", c.Server.RateLimit.Mode)
	}
	if !validMarket(c.Query.DefaultMarket) {
		return fmt.Errorf("query.default_market %q is not a spot market", c.Query.DefaultMarket)
	}
	for _, m := range c.Query.EnabledMarkets {
		if !validMarket(m) {
			return fmt.Errorf("query.enabled_markets: unknown market %q", m)
		}
	}
	for _, m := range c.Report.Markets {
		if !validMarket(m) {
			return fmt.Errorf("report.markets: unknown market %q", m)
		}
	}
	if _, err := time.LoadLocation(c.Query.Timezone); err != nil {
		return fmt.Errorf("query.timezone: %w", err)
	}
	if c.Queue.Enabled && c.Cache.MemoryOnly {
		return fmt.Errorf("queue.enabled needs redis, but cache.memory_only is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

func validMarket(m string) bool {
	switch strings.ToUpper(m) {
	case "DAM", "GDAM", "RTM":
		return true
	}
	return false
}
