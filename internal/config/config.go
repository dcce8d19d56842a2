package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type BrokerConfig struct {
	Path         string        `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DedupConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// Policy is "fail_open" or "fail_closed". Fail-open lets a message
	// through when the cache is unreachable; duplicate delivery is judged
	// less harmful than blocking on a cache outage.
	Policy string `mapstructure:"policy"`
}

type DeliveryConfig struct {
	MaxRetries      int             `mapstructure:"max_retries"`
	BackoffSchedule []time.Duration `mapstructure:"backoff_schedule"`
	ProviderTimeout time.Duration   `mapstructure:"provider_timeout"`
}

type ProvidersConfig struct {
	Email    ProviderConfig `mapstructure:"email"`
	SMS      ProviderConfig `mapstructure:"sms"`
	WhatsApp ProviderConfig `mapstructure:"whatsapp"`
}

type ProviderConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Secret string `mapstructure:"secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("courier")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/courier")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("COURIER")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.path", "./data/courier.db")

	viper.SetDefault("broker.path", "./data/broker.db")
	viper.SetDefault("broker.poll_interval", 500*time.Millisecond)
	viper.SetDefault("broker.lease_ttl", 2*time.Minute)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("dedup.ttl", 24*time.Hour)
	viper.SetDefault("dedup.policy", "fail_open")

	viper.SetDefault("delivery.max_retries", 3)
	viper.SetDefault("delivery.backoff_schedule", []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
	})
	viper.SetDefault("delivery.provider_timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
