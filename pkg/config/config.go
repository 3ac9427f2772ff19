// Package config loads the livevoice configuration: defaults, then an
// optional YAML file, then environment variables. Command line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/realtime-ai/livevoice/pkg/connection"
	"github.com/realtime-ai/livevoice/pkg/live"
	"github.com/realtime-ai/livevoice/pkg/trace"
)

// Transports
const (
	TransportGenAI     = "genai"
	TransportWebSocket = "websocket"
)

// Config is the livevoice configuration.
type Config struct {
	Model             string `yaml:"model"`
	Voice             string `yaml:"voice"`
	SystemInstruction string `yaml:"system_instruction"`

	// Transport 可选 genai / websocket
	Transport string `yaml:"transport"`
	// Endpoint 覆盖 websocket 地址，仅 websocket 传输使用
	Endpoint string `yaml:"endpoint"`

	Audio   AudioConfig   `yaml:"audio"`
	Caption CaptionConfig `yaml:"caption"`
	History HistoryConfig `yaml:"history"`
	Trace   TraceConfig   `yaml:"trace"`
}

type AudioConfig struct {
	CaptureSampleRate  int `yaml:"capture_sample_rate"`
	PlaybackSampleRate int `yaml:"playback_sample_rate"`
	BlockSize          int `yaml:"block_size"`
	OutboundQueueSize  int `yaml:"outbound_queue_size"`
}

type CaptionConfig struct {
	ClearDelay           time.Duration `yaml:"clear_delay"`
	InterruptedIndicator time.Duration `yaml:"interrupted_indicator"`
}

type HistoryConfig struct {
	// Dir 默认为用户配置目录下的 livevoice/history；为空时只保存在内存中
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

type TraceConfig struct {
	// Exporter 可选 none / stdout / otlp
	Exporter     string `yaml:"exporter"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the built-in defaults.
func Default() *Config {
	lc := live.DefaultConfig()
	return &Config{
		Model:     lc.Model,
		Voice:     lc.Voice,
		Transport: TransportGenAI,
		Audio: AudioConfig{
			CaptureSampleRate:  lc.CaptureSampleRate,
			PlaybackSampleRate: lc.PlaybackSampleRate,
			BlockSize:          lc.BlockSize,
			OutboundQueueSize:  lc.OutboundQueueSize,
		},
		Caption: CaptionConfig{
			ClearDelay:           lc.CaptionClearDelay,
			InterruptedIndicator: lc.InterruptedIndicator,
		},
		History: HistoryConfig{
			Dir: DefaultHistoryDir(),
		},
		Trace: TraceConfig{
			Exporter:     trace.ExporterNone,
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// DefaultHistoryDir is <user config dir>/livevoice/history, or "" when the
// user config dir is unknown.
func DefaultHistoryDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "livevoice", "history")
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, applies the environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LIVE_MODEL, LIVE_VOICE, LIVE_TRANSPORT,
// LIVE_ENDPOINT, LIVE_HISTORY_DIR, TRACE_EXPORTER and
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Model, "LIVE_MODEL")
	set(&c.Voice, "LIVE_VOICE")
	set(&c.Transport, "LIVE_TRANSPORT")
	set(&c.Endpoint, "LIVE_ENDPOINT")
	set(&c.History.Dir, "LIVE_HISTORY_DIR")
	set(&c.Trace.Exporter, "TRACE_EXPORTER")
	set(&c.Trace.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if !slices.Contains(live.Voices, c.Voice) {
		errs = append(errs, fmt.Errorf("unknown voice %q (available: %s)", c.Voice, strings.Join(live.Voices, ", ")))
	}
	switch c.Transport {
	case TransportGenAI, TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	switch c.Trace.Exporter {
	case trace.ExporterNone, trace.ExporterStdout, trace.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.Trace.Exporter))
	}
	if c.Audio.CaptureSampleRate <= 0 || c.Audio.PlaybackSampleRate <= 0 {
		errs = append(errs, errors.New("sample rates must be positive"))
	}
	if c.Audio.BlockSize <= 0 {
		errs = append(errs, errors.New("audio.block_size must be positive"))
	}
	if c.Audio.OutboundQueueSize <= 0 {
		errs = append(errs, errors.New("audio.outbound_queue_size must be positive"))
	}
	if c.Caption.ClearDelay <= 0 || c.Caption.InterruptedIndicator <= 0 {
		errs = append(errs, errors.New("caption delays must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LiveConfig converts to the conversation configuration.
func (c *Config) LiveConfig() live.Config {
	return live.Config{
		Model:                c.Model,
		Voice:                c.Voice,
		SystemInstruction:    c.SystemInstruction,
		Transport:            c.Transport,
		CaptureSampleRate:    c.Audio.CaptureSampleRate,
		PlaybackSampleRate:   c.Audio.PlaybackSampleRate,
		BlockSize:            c.Audio.BlockSize,
		OutboundQueueSize:    c.Audio.OutboundQueueSize,
		CaptionClearDelay:    c.Caption.ClearDelay,
		InterruptedIndicator: c.Caption.InterruptedIndicator,
	}
}

// Tracing converts to the tracing configuration.
func (c *Config) Tracing() trace.Config {
	return trace.Config{
		ServiceName:  "livevoice",
		Exporter:     c.Trace.Exporter,
		OTLPEndpoint: c.Trace.OTLPEndpoint,
	}
}

// Connector builds the connector for the configured transport.
func (c *Config) Connector() connection.Connector {
	if c.Transport == TransportWebSocket {
		ws := connection.DefaultWebSocketConfig()
		if c.Endpoint != "" {
			ws.Endpoint = c.Endpoint
		}
		return connection.NewWebSocketConnector(ws)
	}
	return connection.NewGeminiConnector(connection.GeminiConfig{})
}
