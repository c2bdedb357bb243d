package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel          string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	Redis             Redis  `yaml:"redis"`
	SQLiteStoragePath string `yaml:"sqlite-storage-path" env:"SQLITE_STORAGE_PATH" env-default:"matches.db"`
	InviteSecret      string `yaml:"invite-secret" env:"INVITE_SECRET"`
	Wallet            Wallet `yaml:"wallet"`
	Game              Game   `yaml:"game"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Wallet struct {
	Identity  string `yaml:"identity" env:"WALLET_IDENTITY"`
	SignerURL string `yaml:"signer-url" env:"WALLET_SIGNER_URL" env-default:"http://localhost:8899"`
}

type Game struct {
	Role            string        `yaml:"role" env:"GAME_ROLE" env-default:"host"`
	Stake           float64       `yaml:"stake" env:"GAME_STAKE"`
	InviteToken     string        `yaml:"invite-token" env:"GAME_INVITE_TOKEN"`
	MinStake        float64       `yaml:"min-stake" env-default:"0.2"`
	PublishTimeout  time.Duration `yaml:"publish-timeout" env-default:"5s"`
	TransferTimeout time.Duration `yaml:"transfer-timeout" env-default:"2m"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
