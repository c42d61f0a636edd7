package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Cookies   CookieConfig    `mapstructure:"cookies"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Transform TransformConfig `mapstructure:"transform"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ControlPrefix string        `mapstructure:"control_prefix"`
}

// TransportConfig tunes the outbound http.Transport used by the capture
// proxy and the replay dispatcher.
type TransportConfig struct {
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout       time.Duration `mapstructure:"idle_conn_timeout"`
	TLSTimeout            time.Duration `mapstructure:"tls_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
	ExpectContinueTimeout time.Duration `mapstructure:"expect_continue_timeout"`
	MaxConnsPerHost       int           `mapstructure:"max_conns_per_host"`
}

type ProxyConfig struct {
	// Target is the upstream base URL. An empty target disables the proxy.
	Target         string          `mapstructure:"target"`
	HarvestCookies bool            `mapstructure:"harvest_cookies"`
	Transport      TransportConfig `mapstructure:"transport"`
}

type CaptureConfig struct {
	Recording       bool          `mapstructure:"recording"`
	PendingTTL      time.Duration `mapstructure:"pending_ttl"`
	PendingCapacity int           `mapstructure:"pending_capacity"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

type ReplayConfig struct {
	Transport TransportConfig `mapstructure:"transport"`
}

type CookieConfig struct {
	Type  string      `mapstructure:"type"` // memory, redis
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Workers       int           `mapstructure:"workers"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	DB            DBConfig      `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DBConfig struct {
	Type     string `mapstructure:"type"` // postgres, mongodb, couchbase, oracle, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Path     string `mapstructure:"path"` // sqlite only
	Pool     struct {
		MaxConns  int `mapstructure:"max_conns"`
		MinConns  int `mapstructure:"min_conns"`
		BatchSize int `mapstructure:"batch_size"`
	} `mapstructure:"pool"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Global rate limits
	Global struct {
		Requests int           `mapstructure:"requests"`
		Window   time.Duration `mapstructure:"window"`
		Burst    int           `mapstructure:"burst"`
	} `mapstructure:"global"`

	// Per IP rate limits
	PerIP struct {
		Enabled   bool          `mapstructure:"enabled"`
		Requests  int           `mapstructure:"requests"`
		Window    time.Duration `mapstructure:"window"`
		Burst     int           `mapstructure:"burst"`
		WhiteList []string      `mapstructure:"whitelist"`
	} `mapstructure:"per_ip"`

	// Per Route rate limits
	Routes []RouteLimit `mapstructure:"routes"`

	Storage struct {
		Type  string      `mapstructure:"type"` // memory, redis
		Redis RedisConfig `mapstructure:"redis"`
	} `mapstructure:"storage"`
}

type RouteLimit struct {
	Path     string        `mapstructure:"path"` // supports * segments
	Method   string        `mapstructure:"method"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Burst    int           `mapstructure:"burst"`
	Priority int           `mapstructure:"priority"`
}

// TransformConfig maps replay target hosts to script directories.
type TransformConfig struct {
	ScriptsDir string `mapstructure:"scripts_dir"`
	// Services is keyed by an arbitrary service label.
	Services map[string]ServiceTransform `mapstructure:"services"`
}

type ServiceTransform struct {
	// Host the replayed request is sent to.
	Host        string `mapstructure:"host"`
	ServiceName string `mapstructure:"service_name"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.control_prefix", "/_tekrar")

	v.SetDefault("proxy.harvest_cookies", true)
	v.SetDefault("proxy.transport.max_idle_conns", 100)
	v.SetDefault("proxy.transport.idle_conn_timeout", 90*time.Second)
	v.SetDefault("proxy.transport.tls_timeout", 10*time.Second)
	v.SetDefault("proxy.transport.expect_continue_timeout", time.Second)

	v.SetDefault("capture.recording", true)
	v.SetDefault("capture.pending_ttl", 5*time.Minute)
	v.SetDefault("capture.pending_capacity", 10000)
	v.SetDefault("capture.sweep_interval", 30*time.Second)

	v.SetDefault("replay.transport.max_idle_conns", 10)
	v.SetDefault("replay.transport.idle_conn_timeout", 90*time.Second)
	v.SetDefault("replay.transport.tls_timeout", 10*time.Second)

	v.SetDefault("cookies.type", "memory")
	v.SetDefault("cookies.redis.port", 6379)
	v.SetDefault("cookies.redis.timeout", 5*time.Second)

	v.SetDefault("archive.workers", 2)
	v.SetDefault("archive.buffer_size", 1000)
	v.SetDefault("archive.batch_size", 100)
	v.SetDefault("archive.flush_interval", 100*time.Millisecond)
	v.SetDefault("archive.db.type", "sqlite")
	v.SetDefault("archive.db.path", "tekrar.db")

	v.SetDefault("rate_limit.storage.type", "memory")
	v.SetDefault("rate_limit.global.requests", 100)
	v.SetDefault("rate_limit.global.window", time.Minute)

	v.SetDefault("telemetry.service_name", "tekrar")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads the YAML file at configPath. An empty path loads the
// defaults plus environment overrides only.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("tekrar")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Dir(configPath))
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
