package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	MaxBodyBytes    int64
	RedisAddr       string
	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheLRUSize    int
	CacheOpTimeout  time.Duration
	IndexBranching  int
	IndexLeafSize   int
	ClipWorkers     int
	H3Res           int
	MetricsEnabled  bool
	MetricsAddr     string
	MetricsPath     string
	Invalidation    InvalidationCfg
	ShutdownTimeout time.Duration
}

func FromEnv() Config {
	res := getint("H3_RES", 7)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	workers := getint("CLIP_WORKERS", runtime.GOMAXPROCS(0))
	if workers < 1 {
		workers = 1
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		MaxBodyBytes:   int64(getint("MAX_BODY_BYTES", 256<<20)),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:   getbool("CACHE_ENABLED", false),
		CacheTTL:       getduration("CACHE_TTL", 10*time.Minute),
		CacheLRUSize:   getint("CACHE_LRU_SIZE", 256),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		IndexBranching: getint("INDEX_BRANCHING", 16),
		IndexLeafSize:  getint("INDEX_LEAF_SIZE", 16),
		ClipWorkers:    workers,
		H3Res:          res,
		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "kafka"),
			Topic:   getenv("KAFKA_TOPIC", "raster-clip-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "clip-cache-invalidator"),
		},
		ShutdownTimeout: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
