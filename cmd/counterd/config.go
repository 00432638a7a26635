package main

import (
	"errors"
	"fmt"

	"visitcounter/lib/sqliteutil"
)

const defaultPort = 8080

type Config struct {
	Port          int    `json:"port" env:"PORT"`
	CounterID     string `json:"counter_id" env:"COUNTER_ID"`
	AllowedOrigin string `json:"allowed_origin" env:"ALLOWED_ORIGIN"`
	// CacheSeconds is how long GET may serve a cached count, 0 keeps the
	// default and a negative value disables the cache.
	CacheSeconds int               `json:"cache_seconds" env:"CACHE_SECONDS"`
	Database     sqliteutil.Config `json:"database" envPrefix:"DATABASE_"`
	Debug        bool              `json:"debug" env:"DEBUG"`
}

func (c Config) Validate() error {
	if !c.Database.Configured() {
		return errors.New("database.file or database.url must be configured")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	return nil
}

func (c Config) port() int {
	if c.Port == 0 {
		return defaultPort
	}
	return c.Port
}
