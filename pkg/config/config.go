package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"SignalFuse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		// Operator endpoints (gate mutations) are limited per client IP.
		RateLimit struct {
			RPS   float64 `yaml:"rps" default:"5"`
			Burst int     `yaml:"burst" default:"10"`
		} `yaml:"rate_limit"`
		// Browser dashboards allowed to call the API. An empty list turns CORS off.
		CORS struct {
			Origins []string      `yaml:"origins" default:"[\"*\"]"`
			MaxAge  time.Duration `yaml:"max_age" default:"10m"`
		} `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"signalfuse.logs"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
			Levels         []string      `yaml:"levels"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled" default:"true"`
		Brokers      []string `yaml:"brokers"`
		BarsTopic    string   `yaml:"bars_topic" default:"signalfuse.bars"`
		CyclesTopic  string   `yaml:"cycles_topic" default:"signalfuse.cycles"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
			AutoCreate   bool          `yaml:"auto_create_topics"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"signalfuse-engine"`
			StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"256"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"signalfuse.bars.dlq"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
		Breaker struct {
			MaxFailures uint32        `yaml:"max_failures" default:"5"`
			OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
		} `yaml:"breaker"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"signalfuse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BarsTable        string        `yaml:"bars_table" default:"bars"`
		CyclesTable      string        `yaml:"cycles_table" default:"cycles"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"signalfuse"`
		// Idle gate state expires after StateTTL (0 keeps it forever). Stopped gates never expire.
		StateTTL time.Duration `yaml:"state_ttl" default:"72h"`
		// Execution decisions are also pushed onto a Redis list for order routers.
		Outbox struct {
			Enabled bool   `yaml:"enabled"`
			Prefix  string `yaml:"prefix" default:"signalfuse:decisions"`
			MaxLen  int64  `yaml:"max_len" default:"10000"`
		} `yaml:"outbox"`
	} `yaml:"redis"`
	Engine Engine `yaml:"engine"`
}

// Engine configures the detectors, fusion and execution gates.
type Engine struct {
	Symbols     []string                      `yaml:"symbols"`
	Timeframe   string                        `yaml:"timeframe" default:"1m" validate:"oneof=1m 5m 15m 1h 1d"`
	Window      int                           `yaml:"window" default:"300" validate:"gte=10,lte=5000"`
	Timezone    string                        `yaml:"timezone" default:"UTC"`
	Enabled     []string                      `yaml:"enabled"`
	Weights     map[string]float64            `yaml:"weights"`
	Detectors   map[string]map[string]float64 `yaml:"detectors"`
	AutoExecute bool                          `yaml:"auto_execute"`
	// Defaults fill only absent keys; an explicit 0 cap or threshold is kept.
	Gate struct {
		ConsensusThreshold float64 `yaml:"consensus_threshold" default:"60"`
		DailyTradeCap      int     `yaml:"daily_trade_cap" default:"5"`
	} `yaml:"gate"`
}

// Location resolves Engine.Timezone.
func (e Engine) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file and then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadOffline is LoadWithEnv for single-shot runs. A missing file yields defaults and
// Kafka is always disabled.
func LoadOffline(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	c.Kafka.Enabled = false
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

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SIGNALFUSE_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("KAFKA_BARS_TOPIC"); v != "" {
		c.Kafka.BarsTopic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Engine.Symbols = util.SplitList(strings.ToUpper(v))
	}
	if v := getenv("CONSENSUS_THRESHOLD"); v != "" {
		c.Engine.Gate.ConsensusThreshold = util.ParseFloatDefault(v, c.Engine.Gate.ConsensusThreshold)
	}
	if v := getenv("DAILY_TRADE_CAP"); v != "" {
		c.Engine.Gate.DailyTradeCap = util.ParseIntDefault(v, c.Engine.Gate.DailyTradeCap)
	}
}

// Validate checks structural tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if _, err := c.Engine.Location(); err != nil {
		return err
	}
	g := c.Engine.Gate
	if g.ConsensusThreshold < 0 || g.ConsensusThreshold > 100 || math.IsNaN(g.ConsensusThreshold) {
		return fmt.Errorf("engine.gate.consensus_threshold must be in [0,100], got %v", g.ConsensusThreshold)
	}
	if g.DailyTradeCap < 0 {
		return fmt.Errorf("engine.gate.daily_trade_cap must be >= 0, got %d", g.DailyTradeCap)
	}
	if len(c.Engine.Weights) > 0 {
		sum := 0.0
		for name, w := range c.Engine.Weights {
			if w < 0 || math.IsNaN(w) {
				return fmt.Errorf("engine.weights.%s must be >= 0, got %v", name, w)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("engine.weights must sum to 1.0, got %.6f (%s)", sum, strings.Join(c.weightNames(), ","))
		}
	}
	return nil
}

func (c *Config) weightNames() []string {
	out := make([]string, 0, len(c.Engine.Weights))
	for k := range c.Engine.Weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
