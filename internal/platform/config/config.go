package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type StoreDriver string

const (
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
	StoreMemory   StoreDriver = "memory"
)

type Config struct {
	Addr              string        `env:"ADDR"`
	Port              string        `env:"PORT"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`     // 连接处理完一个请求后等待 IdleTimeout 后依旧没有请求，就会关闭此空闲连接
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"` // 关闭服务的最长等待时间，超过后强制断开连接
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// 短链对外的根地址，short URL = BaseURL + "/" + token
	BaseURL           string `env:"BASE_URL" envDefault:"http://localhost:4000"`
	RequireDottedHost bool   `env:"REQUIRE_DOTTED_HOST" envDefault:"false"`

	// 日志配置信息
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string     `env:"LOG_FORMAT" envDefault:"json"`
	ServiceName string     `env:"SERVICE_NAME" envDefault:"snipr"`

	PprofEnabled bool   `env:"PPROF_ENABLED" envDefault:"false"`
	AdminAddr    string `env:"ADMIN_ADDR" envDefault:"127.0.0.1:6060"`

	// JWT 配置
	JWTSecret string        `env:"JWT_SECRET"`                    // HS256 的签名密钥（对称密钥）
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"snipr"` // 签发者标识（iss）
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"12h"`      // token 有效期
	// 管理员账号，密码是 bcrypt hash（用 cmd/tools/hashpass 生成）
	AdminUsername     string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	OtlpGrpcEndpoint string  `env:"OTLP_GRPC_ENDPOINT" envDefault:"127.0.0.1:4317"`
	OtlpServiceName  string  `env:"OTLP_SERVICE_NAME" envDefault:"snipr"`
	OtlpSampleRatio  float64 `env:"OTLP_SAMPLE_RATIO" envDefault:"1"`
	TracingEnabled   bool    `env:"TRACING_ENABLED" envDefault:"false"`

	// 存储
	StoreDriver    StoreDriver `env:"STORE_DRIVER" envDefault:"postgres"`
	DBDSN          string      `env:"DB_DSN"`
	SQLitePath     string      `env:"SQLITE_PATH" envDefault:"snipr.db"`
	MigrateOnStart bool        `env:"MIGRATE_ON_START" envDefault:"true"`

	// Redis，REDIS_URL 优先
	RedisURL      string `env:"REDIS_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// 缓存
	CacheEnabled      bool          `env:"CACHE_ENABLED" envDefault:"true"`
	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	LocalCacheEnabled bool          `env:"LOCAL_CACHE_ENABLED" envDefault:"true"`
	LocalCacheItems   int64         `env:"LOCAL_CACHE_ITEMS" envDefault:"10000"`
	LocalCacheTTL     time.Duration `env:"LOCAL_CACHE_TTL" envDefault:"5m"`
	// 布隆过滤器是进程内的，多副本共享一个库时靠定期重建追上别的副本写入
	BloomEnabled  bool          `env:"BLOOM_ENABLED" envDefault:"false"`
	BloomRefresh  time.Duration `env:"BLOOM_REFRESH_INTERVAL" envDefault:"1m"`
	BloomExpected uint          `env:"BLOOM_EXPECTED_ITEMS" envDefault:"1000000"`
	BloomFPRate   float64       `env:"BLOOM_FP_RATE" envDefault:"0.01"`

	// 点击统计
	KafkaEnabled       bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic         string        `env:"KAFKA_TOPIC" envDefault:"click-events"`
	KafkaGroupID       string        `env:"KAFKA_GROUP_ID" envDefault:"click-stats-consumer"`
	ClickBufferSize    int           `env:"CLICK_BUFFER_SIZE" envDefault:"10000"`
	ClickBatchSize     int           `env:"CLICK_BATCH_SIZE" envDefault:"100"`
	ClickFlushInterval time.Duration `env:"CLICK_FLUSH_INTERVAL" envDefault:"1s"`

	// RateLimit
	RateLimitEnabled bool     `env:"RATELIMIT_ENABLED" envDefault:"true"`
	TrustedProxies   []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Load 读取 .env（如果有）和环境变量。.env 不会覆盖已经存在的环境变量。
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		if p := strings.TrimSpace(cfg.Port); p != "" {
			cfg.Addr = ":" + p
		} else {
			cfg.Addr = ":4000"
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL))
	}

	switch c.StoreDriver {
	case StorePostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required when STORE_DRIVER=postgres"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	if c.AdminPasswordHash != "" && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required when ADMIN_PASSWORD_HASH is set"))
	}
	if c.OtlpSampleRatio < 0 || c.OtlpSampleRatio > 1 {
		errs = append(errs, errors.New("OTLP_SAMPLE_RATIO must be in [0,1]"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.BloomEnabled && (c.BloomFPRate <= 0 || c.BloomFPRate >= 1) {
		errs = append(errs, errors.New("BLOOM_FP_RATE must be in (0,1)"))
	}
	if c.BloomEnabled && c.BloomRefresh <= 0 {
		errs = append(errs, errors.New("BLOOM_REFRESH_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// RedisConfigured 是否配置了 Redis；没配置时只用本地缓存，限流关闭。
func (c Config) RedisConfigured() bool {
	return c.RedisURL != "" || c.RedisAddr != ""
}
