package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// VoiceConfig is one conversational pipeline profile: which STT, TTS and LLM
// endpoints a call uses, the persona, and the voice activity tuning. A call
// snapshots one of these at setup time.
type VoiceConfig struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt *time.Time `json:"-" gorm:"index"`

	Name    string `json:"name" gorm:"size:64;uniqueIndex;not null"`
	Enabled bool   `json:"enabled" gorm:"default:true;index"`

	// recognition
	STTURL    string `json:"sttUrl" gorm:"size:255"`
	STTAPIKey string `json:"-" gorm:"size:255"`

	// synthesis
	TTSURL    string `json:"ttsUrl" gorm:"size:255"`
	TTSAPIKey string `json:"-" gorm:"size:255"`
	TTSVoice  string `json:"ttsVoice" gorm:"size:64"`

	// language model
	LLMBaseURL string `json:"llmBaseUrl" gorm:"size:255"`
	LLMAPIKey  string `json:"-" gorm:"size:255"`
	LLMModel   string `json:"llmModel" gorm:"size:64"`

	SystemPrompt string `json:"systemPrompt" gorm:"type:text"`
	Greeting     string `json:"greeting" gorm:"type:text"`

	// SendConversationContext keeps earlier turns in the model window; off
	// means each turn is answered statelessly.
	SendConversationContext bool `json:"sendConversationContext" gorm:"default:true"`

	Codec string `json:"codec" gorm:"size:8;default:'PCMU'"` // PCMU, PCMA or L16

	// voice activity tuning, zero means engine default
	VADThreshold      float64 `json:"vadThreshold" gorm:"default:0"`
	VADSilenceEndMs   int     `json:"vadSilenceEndMs" gorm:"default:0"`
	VADMinSpeechMs    int     `json:"vadMinSpeechMs" gorm:"default:0"`
	VADMaxUtteranceMs int     `json:"vadMaxUtteranceMs" gorm:"default:0"`

	AlertChannel string `json:"alertChannel" gorm:"size:64"` // directory channel for call summaries
}

// TableName specifies the table name
func (VoiceConfig) TableName() string {
	return constants.TABLE_VOICE_CONFIGS
}

// CreateVoiceConfig creates a voice configuration
func CreateVoiceConfig(db *gorm.DB, cfg *VoiceConfig) error {
	return db.Create(cfg).Error
}

// GetVoiceConfigByName returns a voice configuration by name
func GetVoiceConfigByName(db *gorm.DB, name string) (*VoiceConfig, error) {
	var cfg VoiceConfig
	err := db.Where("name = ?", name).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetDefaultVoiceConfig returns the first enabled voice configuration
func GetDefaultVoiceConfig(db *gorm.DB) (*VoiceConfig, error) {
	var cfg VoiceConfig
	err := db.Where("enabled = ?", true).Order("id ASC").First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateVoiceConfig updates a voice configuration
func UpdateVoiceConfig(db *gorm.DB, cfg *VoiceConfig) error {
	return db.Save(cfg).Error
}

// DeleteVoiceConfig soft-deletes a voice configuration
func DeleteVoiceConfig(db *gorm.DB, id uint) error {
	return db.Delete(&VoiceConfig{}, id).Error
}
