package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/call"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/stt"
	"github.com/LingByte/LingBridge/pkg/telephony"
	"github.com/LingByte/LingBridge/pkg/tts"
)

const streamIDLength = 12

// Handler carries the dependencies of the voice API.
type Handler struct {
	cfg    *config.Config
	db     *gorm.DB
	engine *call.Engine
}

func NewHandler(cfg *config.Config, db *gorm.DB, engine *call.Engine) *Handler {
	return &Handler{cfg: cfg, db: db, engine: engine}
}

// StartCallRequest is the outbound dial request body.
type StartCallRequest struct {
	ToNumber string `json:"to_number" binding:"required"`
	Provider string `json:"provider"`
	Voice    string `json:"voice"`
	Prompt   string `json:"prompt"`
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id"`
	DelayMs  int    `json:"delay_ms"`
}

// StartCall dials out through the configured provider and parks the call
// until the media stream connects back.
func (h *Handler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pc, err := models.GetEnabledProviderConfig(h.db, req.Provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": call.ErrConfigurationMissing.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	vc, err := h.voiceConfig(req.Voice)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": call.ErrConfigurationMissing.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	profile, err := call.BuildProfile(h.cfg, pc, vc, call.Overrides{
		Prompt:  req.Prompt,
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		DelayMs: req.DelayMs,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile.Direction = models.DirectionOutbound
	profile.ToNumber = req.ToNumber

	streamID, err := gonanoid.Nanoid(streamIDLength)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	token := uuid.NewString()

	provider := telephony.NewRESTProvider(pc.BaseURL, pc.APIKey)
	prepared, err := h.engine.Prepare(streamID, token, profile, call.ResolveServices(h.cfg, vc), provider)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	// the caller should hear the greeting without a synthesis pause
	go h.engine.PreloadGreeting(context.Background(), prepared)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	controlID, err := provider.Dial(ctx, telephony.DialRequest{
		ToNumber:     req.ToNumber,
		FromNumber:   pc.FromNumber,
		ConnectionID: pc.ConnectionID,
		StreamURL:    h.streamURL(streamID, token),
	})
	if err != nil {
		h.engine.Abort(streamID)
		logger.Error("outbound dial failed",
			zap.String("provider", pc.Name),
			zap.String("to", req.ToNumber),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	prepared.SetCallControlID(controlID)

	callLog := &models.CallLog{
		CallControlID: controlID,
		StreamID:      streamID,
		Direction:     models.DirectionOutbound,
		FromNumber:    pc.FromNumber,
		ToNumber:      req.ToNumber,
		Status:        models.CallStatusInitiated,
		ProviderName:  pc.Name,
		VoiceName:     vc.Name,
		UserID:        req.UserID,
		ChatID:        req.ChatID,
		StartTime:     time.Now(),
	}
	if err := models.CreateCallLog(h.db, callLog); err != nil {
		logger.Error("failed to record initiated call", zap.Error(err))
	}

	logger.Info("outbound call initiated",
		zap.String("call_control_id", controlID),
		zap.String("stream_id", streamID),
		zap.String("provider", pc.Name),
		zap.String("voice", vc.Name))

	c.JSON(http.StatusOK, gin.H{
		"call_control_id": controlID,
		"stream_id":       streamID,
	})
}

func (h *Handler) voiceConfig(name string) (*models.VoiceConfig, error) {
	if name != "" {
		return models.GetVoiceConfigByName(h.db, name)
	}
	return models.GetDefaultVoiceConfig(h.db)
}

func (h *Handler) streamURL(streamID, token string) string {
	base := strings.TrimRight(h.cfg.Server.URL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + h.cfg.Server.APIPrefix + "/voice/stream/" + streamID + "?token=" + token
}

// webhookEnvelope is the provider event wrapper.
type webhookEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			Direction     string `json:"direction"`
			From          string `json:"from"`
			To            string `json:"to"`
			HangupCause   string `json:"hangup_cause"`
		} `json:"payload"`
	} `json:"data"`
}

// Webhook receives provider call state events: inbound calls get answered
// onto our media stream, hangups wind the session down. Media itself never
// flows through here.
func (h *Handler) Webhook(c *gin.Context) {
	providerName := c.Param("provider")
	pc, err := models.GetProviderConfigByName(h.db, providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	if pc.WebhookSecret != "" && c.GetHeader("X-Webhook-Secret") != pc.WebhookSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad webhook secret"})
		return
	}

	var env webhookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch env.Data.EventType {
	case "call.initiated":
		if env.Data.Payload.Direction == "incoming" {
			h.answerInbound(c, pc, &env)
			return
		}
	case "call.hangup":
		if s, ok := h.engine.SessionByControlID(env.Data.Payload.CallControlID); ok {
			s.RequestHangup(env.Data.Payload.HangupCause)
		}
	default:
		// answered, bridged and the rest are informational here
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// answerInbound accepts an incoming call with the default voice profile and
// parks a session for the media stream the provider will connect.
func (h *Handler) answerInbound(c *gin.Context, pc *models.ProviderConfig, env *webhookEnvelope) {
	vc, err := models.GetDefaultVoiceConfig(h.db)
	if err != nil {
		logger.Error("inbound call has no voice config", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	profile, err := call.BuildProfile(h.cfg, pc, vc, call.Overrides{})
	if err != nil {
		logger.Error("inbound profile build failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	controlID := env.Data.Payload.CallControlID
	profile.Direction = models.DirectionInbound
	profile.CallControlID = controlID
	profile.FromNumber = env.Data.Payload.From
	profile.ToNumber = env.Data.Payload.To

	streamID, err := gonanoid.Nanoid(streamIDLength)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	token := uuid.NewString()

	provider := telephony.NewRESTProvider(pc.BaseURL, pc.APIKey)
	prepared, err := h.engine.Prepare(streamID, token, profile, call.ResolveServices(h.cfg, vc), provider)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	go h.engine.PreloadGreeting(context.Background(), prepared)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := provider.Answer(ctx, controlID, h.streamURL(streamID, token)); err != nil {
		h.engine.Abort(streamID)
		logger.Error("inbound answer failed",
			zap.String("call_control_id", controlID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	callLog := &models.CallLog{
		CallControlID: controlID,
		StreamID:      streamID,
		Direction:     models.DirectionInbound,
		FromNumber:    env.Data.Payload.From,
		ToNumber:      env.Data.Payload.To,
		Status:        models.CallStatusInitiated,
		ProviderName:  pc.Name,
		VoiceName:     vc.Name,
		StartTime:     time.Now(),
	}
	if err := models.CreateCallLog(h.db, callLog); err != nil {
		logger.Error("failed to record inbound call", zap.Error(err))
	}

	logger.Info("inbound call answered",
		zap.String("call_control_id", controlID),
		zap.String("from", env.Data.Payload.From),
		zap.String("stream_id", streamID))
	c.JSON(http.StatusOK, gin.H{"status": "answered", "stream_id": streamID})
}

// Health reports service reachability and live session count.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := gin.H{
		"status":          "ok",
		"active_sessions": h.engine.ActiveCount(),
	}

	sttClient := stt.NewClient(h.cfg.Services.STT.URL, h.cfg.Services.STT.APIKey, 3*time.Second)
	if err := sttClient.Health(ctx); err != nil {
		status["stt"] = err.Error()
		status["status"] = "degraded"
	} else {
		status["stt"] = "ok"
	}

	ttsClient := tts.NewClient(h.cfg.Services.TTS.URL, h.cfg.Services.TTS.APIKey, 0, 0)
	if err := ttsClient.Health(ctx); err != nil {
		status["tts"] = err.Error()
		status["status"] = "degraded"
	} else {
		status["tts"] = "ok"
	}

	c.JSON(http.StatusOK, status)
}

// RecentCalls lists the latest call logs.
func (h *Handler) RecentCalls(c *gin.Context) {
	logs, err := models.ListRecentCallLogs(h.db, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": logs})
}
