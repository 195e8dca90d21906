package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "STICKERBOT_"

type Config struct {
	BotToken        string        `yaml:"bot_token" env:"BOT_TOKEN"`
	AdminID         int64         `yaml:"admin_id" env:"ADMIN_ID"`
	StatsDBPath     string        `yaml:"stats_db_path" env:"STATS_DB_PATH"`
	FFmpegBinary    string        `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY"`
	ProxyURL        string        `yaml:"proxy_url" env:"PROXY_URL"`
	OverlayEndpoint string        `yaml:"overlay_endpoint" env:"OVERLAY_ENDPOINT"`
	OverlayRPS      float64       `yaml:"overlay_rps" env:"OVERLAY_RPS"`
	OverlayBurst    int           `yaml:"overlay_burst" env:"OVERLAY_BURST"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"DELIVERY_TIMEOUT"`
	MaxBodySize     int64         `yaml:"max_body_size" env:"MAX_BODY_SIZE"`
	SendAsLink      bool          `yaml:"send_as_link" env:"SEND_AS_LINK"`
	QueueCapacity   int           `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`
	RelayAddr       string        `yaml:"relay_addr" env:"RELAY_ADDR"`
	Debug           bool          `yaml:"debug" env:"DEBUG"`
}

func Default() Config {
	return Config{
		StatsDBPath:     "./stats.sqlite",
		FFmpegBinary:    "ffmpeg",
		OverlayEndpoint: "https://store.line.me",
		OverlayRPS:      2,
		OverlayBurst:    4,
		FetchTimeout:    30 * time.Second,
		DeliveryTimeout: 60 * time.Second,
		MaxBodySize:     20_000_000,
		QueueCapacity:   100,
		RelayAddr:       ":8089",
	}
}

// Load layers an optional YAML file and then the environment over Default.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parse config")
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, errors.Wrap(err, "parse environment")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.QueueCapacity <= 0 {
		return errors.New("queue_capacity must be positive")
	}
	if c.MaxBodySize <= 0 {
		return errors.New("max_body_size must be positive")
	}
	if c.OverlayRPS <= 0 || c.OverlayBurst <= 0 {
		return errors.New("overlay rate limit must be positive")
	}
	return nil
}
