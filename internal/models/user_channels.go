package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// UserChannel caches the directory channel created for a user's call alerts
// so the channel lookup round trip happens once per user.
type UserChannel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	UserID      string `json:"userId" gorm:"size:64;uniqueIndex;not null"`
	ChannelID   string `json:"channelId" gorm:"size:64;not null"`
	ChannelName string `json:"channelName" gorm:"size:128"`
}

// TableName specifies the table name
func (UserChannel) TableName() string {
	return constants.TABLE_USER_CHANNELS
}

// GetUserChannel returns the cached channel for a user
func GetUserChannel(db *gorm.DB, userID string) (*UserChannel, error) {
	var uc UserChannel
	err := db.Where("user_id = ?", userID).First(&uc).Error
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// SaveUserChannel upserts the channel mapping for a user
func SaveUserChannel(db *gorm.DB, uc *UserChannel) error {
	var existing UserChannel
	err := db.Where("user_id = ?", uc.UserID).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return db.Create(uc).Error
		}
		return err
	}
	existing.ChannelID = uc.ChannelID
	existing.ChannelName = uc.ChannelName
	return db.Save(&existing).Error
}
