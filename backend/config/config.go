package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Auth struct {
		// Path is the auth service base URL used when Secret is empty.
		Path   string `mapstructure:"path"`
		Secret string `mapstructure:"secret"`
	} `mapstructure:"Auth"`
	Realtime struct {
		Step           float64       `mapstructure:"step"`
		Epsilon        float64       `mapstructure:"epsilon"`
		SendQueue      int           `mapstructure:"sendQueue"`
		PersistTimeout time.Duration `mapstructure:"persistTimeout"`
		MaxInflight    int           `mapstructure:"maxInflight"`
		PresenceTTL    time.Duration `mapstructure:"presenceTTL"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"Realtime"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"Log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Running.Port", 3002)
	v.SetDefault("Mysql.dsn", "")
	v.SetDefault("Redis.addrs", []string{})
	v.SetDefault("Redis.password", "")
	v.SetDefault("Kafka.brokers", []string{})
	v.SetDefault("Kafka.topic", "board-events")
	v.SetDefault("Auth.path", "http://localhost:3001")
	v.SetDefault("Auth.secret", "")
	v.SetDefault("Realtime.step", 1000.0)
	v.SetDefault("Realtime.epsilon", 1e-6)
	v.SetDefault("Realtime.sendQueue", 64)
	v.SetDefault("Realtime.persistTimeout", 5*time.Second)
	v.SetDefault("Realtime.maxInflight", 100)
	v.SetDefault("Realtime.presenceTTL", 10*time.Minute)
	v.SetDefault("Realtime.allowedOrigins", []string{})
	v.SetDefault("Log.level", "info")
}

// Load reads name.yaml from the usual places, or file when it is set.
// A missing file is fine: defaults and BOARD_* environment variables
// (BOARD_MYSQL_DSN, BOARD_REDIS_ADDRS, ...) still apply.
func Load(name, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		// works from the repo root or from backend/
		v.AddConfigPath("./backend/config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
