package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// CallStatus call lifecycle states
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
)

// CallDirection who originated the call
type CallDirection string

const (
	DirectionOutbound CallDirection = "outbound"
	DirectionInbound  CallDirection = "inbound"
)

// per-minute price applied to completed calls
const costPerMinute = 0.005

// TranscriptTurn is one spoken turn of the conversation.
type TranscriptTurn struct {
	Role      string    `json:"role"` // "caller" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the full conversation stored as a JSON column.
type Transcript []TranscriptTurn

// Value implements the driver.Valuer interface
func (t Transcript) Value() (driver.Value, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements the sql.Scanner interface
func (t *Transcript) Scan(value interface{}) error {
	if value == nil {
		*t = make(Transcript, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		*t = make(Transcript, 0)
		return nil
	}
	if len(bytes) == 0 {
		*t = make(Transcript, 0)
		return nil
	}
	return json.Unmarshal(bytes, t)
}

// CallLog is the durable record of one call.
type CallLog struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt *time.Time `json:"-" gorm:"index"`

	CallControlID string        `json:"callControlId" gorm:"size:128;uniqueIndex;not null"`
	StreamID      string        `json:"streamId" gorm:"size:64;index"`
	Direction     CallDirection `json:"direction" gorm:"size:10;not null"`
	FromNumber    string        `json:"fromNumber" gorm:"size:20;index"`
	ToNumber      string        `json:"toNumber" gorm:"size:20;index"`
	Status        CallStatus    `json:"status" gorm:"size:20;default:'initiated';index"`

	ProviderName string `json:"providerName" gorm:"size:64"`
	VoiceName    string `json:"voiceName" gorm:"size:64"`

	// optional identity of the user whose assistant took the call
	UserID string `json:"userId,omitempty" gorm:"size:64;index"`
	ChatID string `json:"chatId,omitempty" gorm:"size:64"`

	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int        `json:"durationSeconds" gorm:"default:0"`

	Transcript   Transcript `json:"transcript" gorm:"type:json"`
	Outcome      string     `json:"outcome,omitempty" gorm:"size:64"` // how the call ended
	ErrorMessage string     `json:"errorMessage,omitempty" gorm:"type:text"`

	Cost float64 `json:"cost" gorm:"default:0"`
}

// TableName specifies the table name
func (CallLog) TableName() string {
	return constants.TABLE_CALL_LOGS
}

// CreateCallLog creates a call record
func CreateCallLog(db *gorm.DB, log *CallLog) error {
	return db.Create(log).Error
}

// GetCallLogByControlID returns the record for a provider call control id
func GetCallLogByControlID(db *gorm.DB, callControlID string) (*CallLog, error) {
	var log CallLog
	err := db.Where("call_control_id = ?", callControlID).First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// GetCallLogByStreamID returns the record for a media stream id
func GetCallLogByStreamID(db *gorm.DB, streamID string) (*CallLog, error) {
	var log CallLog
	err := db.Where("stream_id = ?", streamID).First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ListRecentCallLogs returns the latest call records
func ListRecentCallLogs(db *gorm.DB, limit int) ([]CallLog, error) {
	var logs []CallLog
	query := db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&logs).Error
	return logs, err
}

// UpdateCallLog updates a call record
func UpdateCallLog(db *gorm.DB, log *CallLog) error {
	return db.Save(log).Error
}

// AddTurn appends one conversation turn.
func (l *CallLog) AddTurn(role, content string) {
	l.Transcript = append(l.Transcript, TranscriptTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// CalculateDuration fills DurationSeconds from the start and end times.
func (l *CallLog) CalculateDuration() {
	if l.EndTime != nil {
		l.DurationSeconds = int(l.EndTime.Sub(l.StartTime).Seconds())
	}
}

// MarkAnswered records that the media stream came up.
func (l *CallLog) MarkAnswered(db *gorm.DB) error {
	l.Status = CallStatusAnswered
	return db.Save(l).Error
}

// MarkCompleted finalizes the record with duration-based cost.
func (l *CallLog) MarkCompleted(db *gorm.DB, outcome string) error {
	now := time.Now()
	l.Status = CallStatusCompleted
	l.EndTime = &now
	l.Outcome = outcome
	l.CalculateDuration()
	l.Cost = float64(l.DurationSeconds) / 60 * costPerMinute
	return db.Save(l).Error
}

// MarkFailed finalizes the record with an error.
func (l *CallLog) MarkFailed(db *gorm.DB, errorMessage string) error {
	now := time.Now()
	l.Status = CallStatusFailed
	l.EndTime = &now
	l.ErrorMessage = errorMessage
	l.CalculateDuration()
	l.Cost = float64(l.DurationSeconds) / 60 * costPerMinute
	return db.Save(l).Error
}
