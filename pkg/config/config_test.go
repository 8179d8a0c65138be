package config

import (
	"os"
	"testing"
)

func TestConfigLoad(t *testing.T) {
	originalGlobalConfig := GlobalConfig
	defer func() {
		GlobalConfig = originalGlobalConfig
	}()

	os.Setenv("LLM_API_KEY", "test-key")
	os.Setenv("STT_URL", "http://stt.test")
	os.Setenv("TTS_URL", "http://tts.test")
	os.Setenv("TTS_VOICE", "test-voice")

	defer func() {
		os.Unsetenv("LLM_API_KEY")
		os.Unsetenv("STT_URL")
		os.Unsetenv("TTS_URL")
		os.Unsetenv("TTS_VOICE")
	}()

	err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if GlobalConfig == nil {
		t.Fatal("GlobalConfig is nil")
	}

	if GlobalConfig.Services.LLM.APIKey != "test-key" {
		t.Errorf("Expected LLM API key 'test-key', got '%s'", GlobalConfig.Services.LLM.APIKey)
	}

	if GlobalConfig.Services.STT.URL != "http://stt.test" {
		t.Errorf("Expected STT URL 'http://stt.test', got '%s'", GlobalConfig.Services.STT.URL)
	}

	if GlobalConfig.Services.TTS.URL != "http://tts.test" {
		t.Errorf("Expected TTS URL 'http://tts.test', got '%s'", GlobalConfig.Services.TTS.URL)
	}

	if GlobalConfig.Services.TTS.Voice != "test-voice" {
		t.Errorf("Expected TTS voice 'test-voice', got '%s'", GlobalConfig.Services.TTS.Voice)
	}
}

func TestConfigStructure(t *testing.T) {
	originalGlobalConfig := GlobalConfig
	defer func() {
		GlobalConfig = originalGlobalConfig
	}()

	err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if GlobalConfig == nil {
		t.Fatal("GlobalConfig is nil")
	}

	if GlobalConfig.Services.LLM.Temperature <= 0 || GlobalConfig.Services.LLM.Temperature > 2 {
		t.Errorf("LLM temperature should be between 0 and 2, got %f", GlobalConfig.Services.LLM.Temperature)
	}

	if GlobalConfig.Services.LLM.MaxTokens <= 0 {
		t.Errorf("LLM max tokens should be positive, got %d", GlobalConfig.Services.LLM.MaxTokens)
	}

	if GlobalConfig.Call.MaxDuration <= 0 {
		t.Errorf("Call max duration should be positive, got %v", GlobalConfig.Call.MaxDuration)
	}

	if GlobalConfig.Call.VADThreshold <= 0 {
		t.Errorf("VAD threshold should be positive, got %f", GlobalConfig.Call.VADThreshold)
	}

	if GlobalConfig.Call.VADSilenceEnd <= 0 {
		t.Errorf("VAD silence window should be positive, got %v", GlobalConfig.Call.VADSilenceEnd)
	}
}

func TestConfigValidation(t *testing.T) {
	originalGlobalConfig := GlobalConfig
	defer func() {
		GlobalConfig = originalGlobalConfig
	}()

	os.Setenv("DSN", "test.db")
	os.Setenv("ADDR", ":8080")

	defer func() {
		os.Unsetenv("DSN")
		os.Unsetenv("ADDR")
	}()

	err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	err = GlobalConfig.Validate()
	if err != nil {
		t.Errorf("Config validation failed: %v", err)
	}
}

func TestConfigValidationRejectsBadCodec(t *testing.T) {
	originalGlobalConfig := GlobalConfig
	defer func() {
		GlobalConfig = originalGlobalConfig
	}()

	os.Setenv("CALL_CODEC", "OPUS")
	defer os.Unsetenv("CALL_CODEC")

	err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if err := GlobalConfig.Validate(); err == nil {
		t.Error("Expected validation error for unsupported codec")
	}
}
