package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// Config main configuration structure
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database DatabaseConfig   `mapstructure:"database"`
	Log      logger.LogConfig `mapstructure:"log"`
	Services ServicesConfig   `mapstructure:"services"`
	Call     CallConfig       `mapstructure:"call"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name      string `env:"SERVER_NAME"`
	Desc      string `env:"SERVER_DESC"`
	URL       string `env:"SERVER_URL"` // public base URL used to build media stream URLs
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// ServicesConfig services configuration
type ServicesConfig struct {
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

// STTConfig speech recognition service configuration
type STTConfig struct {
	URL     string        `env:"STT_URL"`
	APIKey  string        `env:"STT_API_KEY"`
	Timeout time.Duration `env:"STT_TIMEOUT"`
}

// TTSConfig speech synthesis service configuration
type TTSConfig struct {
	URL             string        `env:"TTS_URL"`
	APIKey          string        `env:"TTS_API_KEY"`
	Voice           string        `env:"TTS_VOICE"`
	Timeout         time.Duration `env:"TTS_TIMEOUT"`
	FirstFrameWait  time.Duration `env:"TTS_FIRST_FRAME_WAIT"`
	OutputSampleMin int           `env:"TTS_SAMPLE_RATE_FALLBACK"` // assumed rate when the WAV header is absent
}

// LLMConfig LLM service configuration
type LLMConfig struct {
	APIKey      string        `env:"LLM_API_KEY"`
	BaseURL     string        `env:"LLM_BASE_URL"`
	Model       string        `env:"LLM_MODEL"`
	Temperature float32       `env:"LLM_TEMPERATURE"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS"`
	Timeout     time.Duration `env:"LLM_TIMEOUT"`
}

// DirectoryConfig user directory (alert sink) configuration
type DirectoryConfig struct {
	URL     string `env:"DIRECTORY_URL"`
	APIKey  string `env:"DIRECTORY_API_KEY"`
	Channel string `env:"DIRECTORY_ALERT_CHANNEL"`
}

// CallConfig per-call behavior defaults. VoiceConfig rows override most of
// these per profile.
type CallConfig struct {
	Codec             string        `env:"CALL_CODEC"` // PCMU, PCMA or L16
	MaxDuration       time.Duration `env:"CALL_MAX_DURATION"`
	GraceWindow       time.Duration `env:"CALL_GRACE_WINDOW"`
	LimitMessage      string        `env:"CALL_LIMIT_MESSAGE"`
	Greeting          string        `env:"CALL_GREETING"`
	VADThreshold      float64       `env:"VAD_RMS_THRESHOLD"`
	VADSilenceEnd     time.Duration `env:"VAD_SILENCE_END"`
	VADMinSpeech      time.Duration `env:"VAD_MIN_SPEECH"`
	VADMaxUtterance   time.Duration `env:"VAD_MAX_UTTERANCE"`
	InitialDelay      time.Duration `env:"CALL_INITIAL_DELAY"`
	MaxActiveSessions int           `env:"CALL_MAX_ACTIVE_SESSIONS"`
}

var GlobalConfig *Config

func Load() error {
	// 1. Load .env file based on environment (don't error if it doesn't exist, use default values)
	env := os.Getenv("APP_ENV")
	err := utils.LoadEnv(env)
	if err != nil {
		// Only log when .env file doesn't exist, don't affect startup
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	// 2. Load global configuration
	GlobalConfig = &Config{
		Server: ServerConfig{
			Name:      getStringOrDefault("SERVER_NAME", "LingBridge"),
			Desc:      getStringOrDefault("SERVER_DESC", ""),
			URL:       getStringOrDefault("SERVER_URL", ""),
			Addr:      getStringOrDefault("ADDR", ":7076"),
			Mode:      getStringOrDefault("MODE", "development"),
			APIPrefix: getStringOrDefault("API_PREFIX", "/api"),
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./ling.db"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Services: ServicesConfig{
			STT: STTConfig{
				URL:     getStringOrDefault("STT_URL", "http://localhost:8001"),
				APIKey:  getStringOrDefault("STT_API_KEY", ""),
				Timeout: parseDuration(getStringOrDefault("STT_TIMEOUT", "10s"), 10*time.Second),
			},
			TTS: TTSConfig{
				URL:             getStringOrDefault("TTS_URL", "http://localhost:8002"),
				APIKey:          getStringOrDefault("TTS_API_KEY", ""),
				Voice:           getStringOrDefault("TTS_VOICE", "default"),
				Timeout:         parseDuration(getStringOrDefault("TTS_TIMEOUT", "60s"), 60*time.Second),
				FirstFrameWait:  parseDuration(getStringOrDefault("TTS_FIRST_FRAME_WAIT", "8s"), 8*time.Second),
				OutputSampleMin: getIntOrDefault("TTS_SAMPLE_RATE_FALLBACK", 24000),
			},
			LLM: LLMConfig{
				APIKey:      getStringOrDefault("LLM_API_KEY", ""),
				BaseURL:     getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
				Model:       getStringOrDefault("LLM_MODEL", "gpt-4o-mini"),
				Temperature: float32(getFloatOrDefault("LLM_TEMPERATURE", 0.7)),
				MaxTokens:   getIntOrDefault("LLM_MAX_TOKENS", 2000),
				Timeout:     parseDuration(getStringOrDefault("LLM_TIMEOUT", "30s"), 30*time.Second),
			},
			Directory: DirectoryConfig{
				URL:     getStringOrDefault("DIRECTORY_URL", ""),
				APIKey:  getStringOrDefault("DIRECTORY_API_KEY", ""),
				Channel: getStringOrDefault("DIRECTORY_ALERT_CHANNEL", "phone-calls"),
			},
		},
		Call: CallConfig{
			Codec:             getStringOrDefault("CALL_CODEC", "PCMU"),
			MaxDuration:       parseDuration(getStringOrDefault("CALL_MAX_DURATION", "5m"), 5*time.Minute),
			GraceWindow:       parseDuration(getStringOrDefault("CALL_GRACE_WINDOW", "2s"), 2*time.Second),
			LimitMessage:      getStringOrDefault("CALL_LIMIT_MESSAGE", "I'm sorry, but we've reached the maximum call duration. Goodbye."),
			Greeting:          getStringOrDefault("CALL_GREETING", "Hello! How can I help you today?"),
			VADThreshold:      getFloatOrDefault("VAD_RMS_THRESHOLD", 500),
			VADSilenceEnd:     parseDuration(getStringOrDefault("VAD_SILENCE_END", "1200ms"), 1200*time.Millisecond),
			VADMinSpeech:      parseDuration(getStringOrDefault("VAD_MIN_SPEECH", "500ms"), 500*time.Millisecond),
			VADMaxUtterance:   parseDuration(getStringOrDefault("VAD_MAX_UTTERANCE", "15s"), 15*time.Second),
			InitialDelay:      parseDuration(getStringOrDefault("CALL_INITIAL_DELAY", "0s"), 0),
			MaxActiveSessions: getIntOrDefault("CALL_MAX_ACTIVE_SESSIONS", 100),
		},
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate database configuration
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}

	// Validate server configuration
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}

	switch c.Call.Codec {
	case "PCMU", "PCMA", "L16":
	default:
		return errors.New("call codec must be PCMU, PCMA or L16")
	}

	if c.Call.MaxDuration <= 0 {
		return errors.New("call max duration must be positive")
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getFloatOrDefault gets float environment variable value, returns default if empty
func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
