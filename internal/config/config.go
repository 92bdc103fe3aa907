// Package config loads the typed service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Delivery struct {
	Timeout        time.Duration // outbound POST timeout
	TestTimeout    time.Duration // timeout for the explicit test-delivery path
	MaxHistorySize int           // delivery history ring capacity
	MaxDLQSize     int           // dead-letter store capacity
}

type Retry struct {
	MaxRetries        int     // default per-subscription retry budget
	BackoffMultiplier float64 // default exponential multiplier
	InitialDelayMS    int     // default first retry delay
}

type Dispatch struct {
	MaxWorkers int     // fan-out concurrency cap; 0 = one goroutine per subscription
	RatePerSec float64 // delivery rate limit; 0 = unlimited
}

type NSQ struct {
	Enabled        bool
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	EventsTopic    string // inbound event topic
	EventsChannel  string // consumer channel name
	PublishDLQ     bool   // publish dead letters to DLQTopic
	DLQTopic       string
}

type DB struct {
	Enabled bool
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
}

type Auth struct {
	JWTPublicKeyPEM string // empty disables API auth
	Issuer          string
	Audience        string
}

type Config struct {
	AppName  string
	HTTPPort string // :8080
	Delivery Delivery
	Retry    Retry
	Dispatch Dispatch
	NSQ      NSQ
	DB       DB
	Auth     Auth
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "hookrelay"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		Delivery: Delivery{
			Timeout:        getenvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			TestTimeout:    getenvDuration("TEST_DELIVERY_TIMEOUT", 10*time.Second),
			MaxHistorySize: getenvInt("MAX_HISTORY_SIZE", 10000),
			MaxDLQSize:     getenvInt("MAX_DLQ_SIZE", 1000),
		},
		Retry: Retry{
			MaxRetries:        getenvInt("RETRY_MAX_RETRIES", 5),
			BackoffMultiplier: getenvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
			InitialDelayMS:    getenvInt("RETRY_INITIAL_DELAY_MS", 1000),
		},
		Dispatch: Dispatch{
			MaxWorkers: getenvInt("DISPATCH_MAX_WORKERS", 0),
			RatePerSec: getenvFloat("DISPATCH_RATE_PER_SEC", 0),
		},
		NSQ: NSQ{
			Enabled:        getenvBool("NSQ_ENABLED", false),
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:    getenv("NSQ_EVENTS_TOPIC", "events"),
			EventsChannel:  getenv("NSQ_EVENTS_CHANNEL", "dispatch"),
			PublishDLQ:     getenvBool("PUBLISH_DLQ_TOPIC", false),
			DLQTopic:       getenv("NSQ_DLQ_TOPIC", "events_dlq"),
		},
		DB: DB{
			Enabled: getenvBool("DB_ENABLED", false),
			User:    getenv("DB_USER", "postgres"),
			Pass:    getenv("DB_PASS", "postgres"),
			Host:    getenv("DB_HOST", "postgres"),
			Port:    getenv("DB_PORT", "5432"),
			Name:    getenv("DB_NAME", "hookrelay"),
		},
		Auth: Auth{
			JWTPublicKeyPEM: getenv("JWT_PUBLIC_KEY", ""),
			Issuer:          getenv("JWT_ISSUER", "hookrelay"),
			Audience:        getenv("JWT_AUDIENCE", "hookrelay-api"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
