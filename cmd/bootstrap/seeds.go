package bootstrap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/utils"
)

type SeedService struct {
	db *gorm.DB
}

func (s *SeedService) SeedAll() error {
	if err := s.seedProviderConfig(); err != nil {
		return err
	}
	if err := s.seedVoiceConfig(); err != nil {
		return err
	}
	return nil
}

// seedProviderConfig creates a default telephony provider row so a fresh
// install can dial as soon as credentials are supplied.
func (s *SeedService) seedProviderConfig() error {
	var existing models.ProviderConfig
	result := s.db.Where("name = ?", "telnyx").First(&existing)
	if result.Error == nil {
		logger.Info("provider config already exists, skipping seed")
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing provider config: %w", result.Error)
	}

	baseURL := utils.GetEnv("TELNYX_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.telnyx.com"
	}
	cfg := &models.ProviderConfig{
		Name:            "telnyx",
		BaseURL:         baseURL,
		APIKey:          utils.GetEnv("TELNYX_API_KEY"),
		ConnectionID:    utils.GetEnv("TELNYX_CONNECTION_ID"),
		FromNumber:      utils.GetEnv("TELNYX_FROM_NUMBER"),
		WebhookSecret:   utils.GetEnv("TELNYX_WEBHOOK_SECRET"),
		MaxCallDuration: int(config.GlobalConfig.Call.MaxDuration.Seconds()),
		Enabled:         true,
	}
	if err := models.CreateProviderConfig(s.db, cfg); err != nil {
		return fmt.Errorf("failed to create provider config: %w", err)
	}
	logger.Info("seeded default provider config", zap.String("name", cfg.Name))
	return nil
}

// seedVoiceConfig creates the default conversational persona from the
// configured service endpoints.
func (s *SeedService) seedVoiceConfig() error {
	var existing models.VoiceConfig
	result := s.db.Where("name = ?", "default").First(&existing)
	if result.Error == nil {
		logger.Info("voice config already exists, skipping seed")
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing voice config: %w", result.Error)
	}

	services := config.GlobalConfig.Services
	cfg := &models.VoiceConfig{
		Name:       "default",
		Enabled:    true,
		STTURL:     services.STT.URL,
		STTAPIKey:  services.STT.APIKey,
		TTSURL:     services.TTS.URL,
		TTSAPIKey:  services.TTS.APIKey,
		TTSVoice:   services.TTS.Voice,
		LLMBaseURL: services.LLM.BaseURL,
		LLMAPIKey:  services.LLM.APIKey,
		LLMModel:   services.LLM.Model,
		SystemPrompt: "You are a friendly phone assistant. Keep replies short and natural, " +
			"one or two sentences, since they will be spoken aloud. When the caller is done, " +
			"say goodbye and end the call.",
		Greeting:                config.GlobalConfig.Call.Greeting,
		SendConversationContext: true,
		Codec:                   config.GlobalConfig.Call.Codec,
	}
	if err := models.CreateVoiceConfig(s.db, cfg); err != nil {
		return fmt.Errorf("failed to create voice config: %w", err)
	}
	logger.Info("seeded default voice config", zap.String("name", cfg.Name))
	return nil
}
