package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the process-level configuration. Per-guild moderation settings
// live in the settings store, not here.
type Config struct {
	Discord    DiscordConfig    `toml:"discord"`
	Storage    StorageConfig    `toml:"storage"`
	STT        STTConfig        `toml:"stt"`
	Classifier ClassifierConfig `toml:"classifier"`
	TTS        TTSConfig        `toml:"tts"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Stream     StreamConfig     `toml:"stream"`
}

type DiscordConfig struct {
	Token string `toml:"token"` // overridden by DISCORD_BOT_TOKEN
}

type StorageConfig struct {
	SQLitePath       string `toml:"sqlite_path"`        // ledger, settings and metrics database
	AnnounceCacheDir string `toml:"announce_cache_dir"` // content-addressed TTS cache
}

type STTConfig struct {
	URL               string  `toml:"url"`        // whisper-compatible transcription endpoint
	AuthToken         string  `toml:"auth_token"` // overridden by STT_AUTH_TOKEN
	TimeoutMs         int     `toml:"timeout_ms"`
	Language          string  `toml:"language"`
	PricePerMinuteUSD float64 `toml:"price_per_minute_usd"`
}

type ClassifierConfig struct {
	BaseURL           string `toml:"base_url"` // OpenAI-compatible chat completions base
	APIKey            string `toml:"api_key"`  // overridden by AUTOMOD_OPENAI_KEY
	Model             string `toml:"model"`
	HighAccuracyModel string `toml:"high_accuracy_model"`
	TimeoutMs         int    `toml:"timeout_ms"`
}

type TTSConfig struct {
	URL        string `toml:"url"`
	APIKey     string `toml:"api_key"` // overridden by TTS_API_KEY, falls back to the classifier key
	Model      string `toml:"model"`
	Voice      string `toml:"voice"`
	TimeoutSec int    `toml:"timeout_seconds"`
}

type PipelineConfig struct {
	TranscribeWorkers   int     `toml:"transcribe_workers"`
	TranscribeQueueSize int     `toml:"transcribe_queue_size"`
	HarvestWindowSec    float64 `toml:"harvest_window_seconds"`
	MinCaptureSec       float64 `toml:"min_capture_seconds"`
	FlushMinUtterances  int     `toml:"flush_min_utterances"`
	FlushMaxUtterances  int     `toml:"flush_max_utterances"`
	FlushMinIntervalSec float64 `toml:"flush_min_interval_seconds"`
	FlushMaxLatencySec  float64 `toml:"flush_max_latency_seconds"`
	ChunkLimit          int     `toml:"chunk_limit"`
}

type SchedulerConfig struct {
	TickSec            int `toml:"tick_seconds"`
	BackoffBaseSec     int `toml:"backoff_base_seconds"`
	BackoffMaxSec      int `toml:"backoff_max_seconds"`
	CycleMarginSec     int `toml:"cycle_margin_seconds"`
	MinCycleTimeoutSec int `toml:"min_cycle_timeout_seconds"`
}

type StreamConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // listen address for the live transcript websocket
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			SQLitePath:       "data/voicemod.db",
			AnnounceCacheDir: "data/announce-cache",
		},
		STT: STTConfig{
			TimeoutMs:         30000,
			PricePerMinuteUSD: 0.003,
		},
		Classifier: ClassifierConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-5-nano",
			HighAccuracyModel: "gpt-5-mini",
			TimeoutMs:         60000,
		},
		TTS: TTSConfig{
			URL:        "https://api.openai.com/v1/audio/speech",
			Model:      "gpt-4o-mini-tts",
			Voice:      "alloy",
			TimeoutSec: 20,
		},
		Pipeline: PipelineConfig{
			TranscribeWorkers:   3,
			TranscribeQueueSize: 6,
			HarvestWindowSec:    2.0,
			MinCaptureSec:       1.0,
			FlushMinUtterances:  3,
			FlushMaxUtterances:  12,
			FlushMinIntervalSec: 2.5,
			FlushMaxLatencySec:  8.0,
			ChunkLimit:          3900,
		},
		Scheduler: SchedulerConfig{
			TickSec:            10,
			BackoffBaseSec:     30,
			BackoffMaxSec:      600,
			CycleMarginSec:     30,
			MinCycleTimeoutSec: 90,
		},
		Stream: StreamConfig{
			Addr: "127.0.0.1:8790",
		},
	}
}

// Load reads the TOML file at path (missing file is fine, defaults apply) and
// applies environment overrides for secrets.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTOMOD_OPENAI_KEY")); v != "" {
		cfg.Classifier.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("STT_AUTH_TOKEN")); v != "" {
		cfg.STT.AuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TTS_API_KEY")); v != "" {
		cfg.TTS.APIKey = v
	} else if cfg.TTS.APIKey == "" {
		cfg.TTS.APIKey = cfg.Classifier.APIKey
	}
}

// Validate checks the invariants the pipeline relies on.
func (c Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token required (config [discord].token or DISCORD_BOT_TOKEN)")
	}
	if c.Pipeline.TranscribeWorkers <= 0 {
		return fmt.Errorf("pipeline.transcribe_workers must be positive")
	}
	if c.Pipeline.TranscribeQueueSize <= 0 {
		return fmt.Errorf("pipeline.transcribe_queue_size must be positive")
	}
	if c.Pipeline.HarvestWindowSec <= 0 {
		return fmt.Errorf("pipeline.harvest_window_seconds must be positive")
	}
	if c.Pipeline.ChunkLimit <= 0 {
		return fmt.Errorf("pipeline.chunk_limit must be positive")
	}
	if c.Scheduler.TickSec <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be positive")
	}
	return nil
}
