package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/raster-clip/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// Res is the H3 resolution event boxes are mapped at; it must match the
	// result cache's.
	Res        int
	DedupeSize int
}

func FromConfig(c config.Config) Config {
	return Config{
		Brokers:             splitCSV(c.Invalidation.Brokers),
		Topic:               c.Invalidation.Topic,
		GroupID:             c.Invalidation.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		Res:                 c.H3Res,
		DedupeSize:          8192,
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
