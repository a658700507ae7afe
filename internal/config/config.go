package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Bucket           string
	QuarantinePrefix string
	UseSSL           bool
	Region           string
}

type SignerConfig struct {
	PrivateTTL time.Duration
	PublicTTL  time.Duration
}

type GCConfig struct {
	SweepSchedule     string
	ReconcileSchedule string
	BatchSize         int
	MaxAttempts       int
	BackoffBase       time.Duration
	RetentionWindow   time.Duration
	NudgeStream       string
	NudgeGroup        string
}

type LifecycleConfig struct {
	OfflineGrace time.Duration
	FrozenGrace  time.Duration
}

type CacheConfig struct {
	VisibilityTTL time.Duration
}

type AppConfig struct {
	Environment string
	Postgres    PostgresConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Signer      SignerConfig
	GC          GCConfig
	Lifecycle   LifecycleConfig
	Cache       CacheConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("PHOTOKEEPER")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "photokeeper-content")
	v.SetDefault("storage.quarantineprefix", "quarantine/")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("signer.privatettl", "15m")
	v.SetDefault("signer.publicttl", "24h")

	v.SetDefault("gc.sweepschedule", "0 * * * * *")     // every minute
	v.SetDefault("gc.reconcileschedule", "0 0 3 * * *") // daily, off-peak
	v.SetDefault("gc.batchsize", 100)
	v.SetDefault("gc.maxattempts", 5)
	v.SetDefault("gc.backoffbase", "30s")
	v.SetDefault("gc.retentionwindow", "336h") // two weeks
	v.SetDefault("gc.nudgestream", "ledger:purge")
	v.SetDefault("gc.nudgegroup", "collectors")

	v.SetDefault("lifecycle.offlinegrace", "720h") // 30 days
	v.SetDefault("lifecycle.frozengrace", "1440h") // 60 days

	v.SetDefault("cache.visibilityttl", "60s")
}
