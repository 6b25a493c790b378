package app

import (
	"time"

	cmnenv "github.com/rifatismailov/server-cube/server/common/env"
)

type Config struct {
	Env         string
	Port        string
	StaleTTL    time.Duration
	SendWorkers int
	SendQueue   int
}

func LoadConfig() Config {
	return Config{
		Env:         cmnenv.String("APP_ENV", "dev"),
		Port:        cmnenv.String("PORT", "8080"),
		StaleTTL:    cmnenv.Duration("RELAY_PRESENCE_TTL", 6*time.Second),
		SendWorkers: cmnenv.Int("RELAY_SEND_WORKERS", 10),
		SendQueue:   cmnenv.Int("RELAY_SEND_QUEUE", 1024),
	}
}
