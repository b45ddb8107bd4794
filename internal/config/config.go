package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Provider exposes the application's configuration to consumers without
// tying them to a concrete source. The env-backed Config below is the only
// implementation in production; tests provide their own.
type Provider interface {
	GetAddr() string
	GetUpstreamBaseURL() string
	GetUpstreamTimeout() time.Duration
	GetActingUserID() string
	GetRoomsTTL() time.Duration
	GetMessagesTTL() time.Duration
}

// Config holds all configuration for the application.
type Config struct {
	Addr            string
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	ActingUserID    string
	RoomsTTL        time.Duration
	MessagesTTL     time.Duration
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:            getEnv("ADDR", ":8080"),
		UpstreamBaseURL: os.Getenv("UPSTREAM_BASE_URL"),
		UpstreamTimeout: getDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		ActingUserID:    os.Getenv("ACTING_USER_ID"),
		RoomsTTL:        getDuration("ROOMS_TTL", 30*time.Second),
		MessagesTTL:     getDuration("MESSAGES_TTL", 10*time.Second),
	}

	if cfg.UpstreamBaseURL == "" || cfg.ActingUserID == "" {
		log.Fatal("Required environment variables UPSTREAM_BASE_URL or ACTING_USER_ID are not set.")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return d
}

func (c *Config) GetAddr() string                   { return c.Addr }
func (c *Config) GetUpstreamBaseURL() string        { return c.UpstreamBaseURL }
func (c *Config) GetUpstreamTimeout() time.Duration { return c.UpstreamTimeout }
func (c *Config) GetActingUserID() string           { return c.ActingUserID }
func (c *Config) GetRoomsTTL() time.Duration        { return c.RoomsTTL }
func (c *Config) GetMessagesTTL() time.Duration     { return c.MessagesTTL }
