package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// ProviderConfig is a telephony provider account: REST credentials plus the
// defaults applied to calls placed through it.
type ProviderConfig struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt *time.Time `json:"-" gorm:"index"`

	Name          string `json:"name" gorm:"size:64;uniqueIndex;not null"` // provider key, e.g. "telnyx"
	BaseURL       string `json:"baseUrl" gorm:"size:255;not null"`
	APIKey        string `json:"-" gorm:"size:255;not null"`
	ConnectionID  string `json:"connectionId" gorm:"size:128"`
	FromNumber    string `json:"fromNumber" gorm:"size:20"`
	WebhookSecret string `json:"-" gorm:"size:128"`

	MaxCallDuration  int    `json:"maxCallDuration" gorm:"default:300"` // seconds
	CallLimitMessage string `json:"callLimitMessage" gorm:"type:text"`

	Enabled  bool `json:"enabled" gorm:"default:true;index"`
	Priority int  `json:"priority" gorm:"default:0"`
}

// TableName specifies the table name
func (ProviderConfig) TableName() string {
	return constants.TABLE_PROVIDER_CONFIGS
}

// CreateProviderConfig creates a provider configuration
func CreateProviderConfig(db *gorm.DB, cfg *ProviderConfig) error {
	return db.Create(cfg).Error
}

// GetProviderConfigByName returns the provider with the given key
func GetProviderConfigByName(db *gorm.DB, name string) (*ProviderConfig, error) {
	var cfg ProviderConfig
	err := db.Where("name = ?", name).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetEnabledProviderConfig returns the highest-priority enabled provider,
// optionally restricted to a named one.
func GetEnabledProviderConfig(db *gorm.DB, name string) (*ProviderConfig, error) {
	var cfg ProviderConfig
	query := db.Where("enabled = ?", true)
	if name != "" {
		query = query.Where("name = ?", name)
	}
	err := query.Order("priority DESC").First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateProviderConfig updates a provider configuration
func UpdateProviderConfig(db *gorm.DB, cfg *ProviderConfig) error {
	return db.Save(cfg).Error
}

// DeleteProviderConfig soft-deletes a provider configuration
func DeleteProviderConfig(db *gorm.DB, id uint) error {
	return db.Delete(&ProviderConfig{}, id).Error
}
