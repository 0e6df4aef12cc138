// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RabbitConnection        string `yaml:"rabbit_connection"`
	BaseURL                 string `yaml:"base_url"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Stripe                  `yaml:"stripe"`
	IdentityWebhook         `yaml:"identity_webhook"`
	RateLimit               `yaml:"rate_limit"`
	Verification            `yaml:"verification"`
	Media                   `yaml:"media"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для проверки сессионных токенов identity-провайдера
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Stripe структура для настройки биллинг-провайдера
type Stripe struct {
	APIKey             string `yaml:"api_key"`
	WebhookSecret      string `yaml:"webhook_secret"`
	CheckoutSuccessURL string `yaml:"checkout_success_url"`
	CheckoutCancelURL  string `yaml:"checkout_cancel_url"`
	PortalReturnURL    string `yaml:"portal_return_url"`
}

// IdentityWebhook структура для проверки подписи вебхуков identity-провайдера
type IdentityWebhook struct {
	SigningSecret string        `yaml:"signing_secret"`
	Tolerance     time.Duration `yaml:"tolerance"`
}

// RateLimit настройки скользящего окна для чувствительных операций
type RateLimit struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
}

// Verification настройки кодов подтверждения
type Verification struct {
	CodeTTL       time.Duration `yaml:"code_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Media настройки внешнего файлового хранилища
type Media struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// MustLoad функция для загрузки конфига, путь берётся из переменной CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
