package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"port"`
	PublicHost       string        `mapstructure:"public_host"` // 对外可见地址，例如 https://example.com
	APIPrefix        string        `mapstructure:"api_prefix"`
	DatabaseMode     string        `mapstructure:"database_mode"` // postgres | mysql | sqlite
	DatabaseURL      string        `mapstructure:"database_url"`
	RedisURL         string        `mapstructure:"redis_url"`
	RedisPassword    string        `mapstructure:"redis_password"`
	RedisDB          int           `mapstructure:"redis_db"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	Debug            bool          `mapstructure:"debug"`
	BehindProxy      bool          `mapstructure:"behind_proxy"`
	PeerTimeout      time.Duration `mapstructure:"peer_timeout"`
	AuthTimeout      time.Duration `mapstructure:"auth_timeout"`
	BackfillLookback time.Duration `mapstructure:"backfill_lookback"`
	ConnectOnAccept  bool          `mapstructure:"connect_on_accept"`
	RateLimitRPS     float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
}

// Load 读取 .env 与环境变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("public_host", "http://localhost:8080")
	v.SetDefault("api_prefix", "/antisocial")
	v.SetDefault("database_mode", "sqlite")
	v.SetDefault("database_url", "./data/federation.db")
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("debug", false)
	v.SetDefault("behind_proxy", false)
	v.SetDefault("peer_timeout", "10s")
	v.SetDefault("auth_timeout", "10s")
	v.SetDefault("backfill_lookback", "720h")
	v.SetDefault("connect_on_accept", true)
	v.SetDefault("rate_limit_rps", 20)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("allowed_origins", "")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = splitList(v.GetString("allowed_origins"))
	cfg.PublicHost = strings.TrimRight(cfg.PublicHost, "/")
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
