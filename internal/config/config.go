package config

import (
	"context"
	"fmt"

	"github.com/m0rjc/goconfig"
)

// ServerConfig holds the two listener ports the engine exposes: the
// public control-plane HTTP mux and the standalone WebSocket Bus port.
type ServerConfig struct {
	HTTPPort    int `key:"HTTP_PORT" default:"8121" min:"1" max:"65535"`
	WSPort      int `key:"WS_PORT" default:"18765" min:"1" max:"65535"`
	MetricsPort int `key:"METRICS_PORT" default:"9090" min:"1" max:"65535"`
}

// DeviceConfig holds Device Adapter defaults.
type DeviceConfig struct {
	ScanDefaultDurationS int     `key:"SCAN_DEFAULT_DURATION_S" default:"15" min:"0"`
	ConnectTimeoutS      int     `key:"CONNECT_TIMEOUT_S" default:"30" min:"1"`
	AutoReconnect        bool    `key:"AUTO_RECONNECT" default:"false"`
	MainsHz              float64 `key:"MAINS_HZ" default:"60"`
}

// RingBufferConfig holds per-sensor ring buffer capacities.
type RingBufferConfig struct {
	CapacityEEG     int `key:"RING_CAPACITY_EEG" default:"2000" min:"1"`
	CapacityPPG     int `key:"RING_CAPACITY_PPG" default:"400" min:"1"`
	CapacityACC     int `key:"RING_CAPACITY_ACC" default:"150" min:"1"`
	CapacityBattery int `key:"RING_CAPACITY_BATTERY" default:"50" min:"1"`
}

// TickConfig holds each DSP pipeline's tick cadence in milliseconds.
type TickConfig struct {
	EEGMs int `key:"TICK_MS_EEG" default:"500" min:"10"`
	PPGMs int `key:"TICK_MS_PPG" default:"500" min:"10"`
	ACCMs int `key:"TICK_MS_ACC" default:"500" min:"10"`
	BatMs int `key:"TICK_MS_BAT" default:"1000" min:"10"`
}

// BusConfig holds WebSocket Bus back-pressure knobs.
type BusConfig struct {
	ClientSendQueueLen       int `key:"CLIENT_SEND_QUEUE_LEN" default:"128" min:"1"`
	SlowConsumerLagThreshold int `key:"SLOW_CONSUMER_LAG_THRESHOLD" default:"50" min:"1"`
}

// RecorderConfig holds Session Recorder configuration.
type RecorderConfig struct {
	DataDir         string `key:"DATA_DIR" default:"./data"`
	RecorderQueueLen int   `key:"RECORDER_QUEUE_LEN" default:"256" min:"1"`
}

// DatabaseConfig holds the relational store connection. Driver defaults
// to sqlite (a local file under DataDir); set DBDriver=postgres and
// DatabaseURL to use a shared instance instead.
type DatabaseConfig struct {
	DBDriver    string `key:"DB_DRIVER" default:"sqlite"`
	DatabaseURL string `key:"DATABASE_URL" default:""`
}

// RedisConfig holds the optional Redis connection used for the Bus's
// passive mirror and for control-plane rate limiting. Leave RedisURL
// empty to run without Redis: the mirror is simply not attached, and
// rate limiting falls back to an always-allow mock limiter.
type RedisConfig struct {
	RedisURL       string `key:"REDIS_URL" default:""`
	RedisKeyPrefix string `key:"REDIS_KEY_PREFIX" default:"bioengine:"`
}

// Config is the complete engine configuration.
type Config struct {
	Server    ServerConfig
	Device    DeviceConfig
	RingBuf   RingBufferConfig
	Tick      TickConfig
	Bus       BusConfig
	Recorder  RecorderConfig
	Database  DatabaseConfig
	Redis     RedisConfig
}

// MinimalConfig is the subset of configuration needed by the reaper job
// (crash-recovery and stale-export cleanup): just enough to open the
// store, nothing about ports or the device link.
type MinimalConfig struct {
	Recorder RecorderConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// Load loads the complete engine configuration from environment
// variables using the teacher's reflect-tag-driven loader.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := goconfig.Load(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// LoadMinimal loads only what the reaper job needs.
func LoadMinimal() (*MinimalConfig, error) {
	cfg := &MinimalConfig{}
	if err := goconfig.Load(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to load minimal configuration: %w", err)
	}
	return cfg, nil
}
