package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/call"
	"github.com/LingByte/LingBridge/pkg/config"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProviderConfig{},
		&models.VoiceConfig{},
		&models.CallLog{},
		&models.UserChannel{},
	))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Name:      "LingBridge",
			URL:       "http://bridge.example.test",
			Addr:      ":0",
			Mode:      "test",
			APIPrefix: "/api",
		},
		Call: config.CallConfig{
			Codec:        "PCMU",
			MaxDuration:  time.Minute,
			GraceWindow:  2 * time.Second,
			LimitMessage: "out of time",
			Greeting:     "hello",
		},
	}
}

func seedConfigs(t *testing.T, db *gorm.DB, providerBaseURL string) {
	t.Helper()
	require.NoError(t, models.CreateProviderConfig(db, &models.ProviderConfig{
		Name:          "telnyx",
		BaseURL:       providerBaseURL,
		APIKey:        "key-test",
		ConnectionID:  "conn-1",
		FromNumber:    "+15550001111",
		WebhookSecret: "hook-secret",
		Enabled:       true,
	}))
	require.NoError(t, models.CreateVoiceConfig(db, &models.VoiceConfig{
		Name:         "default",
		Enabled:      true,
		TTSVoice:     "nova",
		SystemPrompt: "you are a phone assistant",
		Greeting:     "hi, this is the assistant",
		Codec:        "PCMU",
	}))
}

type fakeProviderAPI struct {
	mu      sync.Mutex
	dials   []map[string]any
	answers []map[string]any
}

func (f *fakeProviderAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/calls", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.dials = append(f.dials, body)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"call_control_id":"cc-123"}}`))
	})
	mux.HandleFunc("/v2/calls/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.answers = append(f.answers, body)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"result":"ok"}}`))
	})
	return httptest.NewServer(mux)
}

func newTestRouter(t *testing.T, providerBaseURL string) (*gin.Engine, *gorm.DB, *call.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	db := testDB(t)
	seedConfigs(t, db, providerBaseURL)
	engine := call.NewEngine(cfg, db, nil)
	return NewRouter(cfg, db, engine), db, engine
}

func TestStartCallDialsProviderAndRecordsCall(t *testing.T) {
	api := &fakeProviderAPI{}
	srv := api.server(t)
	defer srv.Close()

	router, db, engine := newTestRouter(t, srv.URL)

	body, _ := json.Marshal(gin.H{"to_number": "+15550002222"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/call", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cc-123", resp["call_control_id"])
	require.NotEmpty(t, resp["stream_id"])

	// dial carried the bidirectional stream parameters and our stream URL
	require.Len(t, api.dials, 1)
	dial := api.dials[0]
	assert.Equal(t, "+15550002222", dial["to"])
	assert.Equal(t, "+15550001111", dial["from"])
	assert.Equal(t, "conn-1", dial["connection_id"])
	assert.Equal(t, "both_tracks", dial["stream_track"])
	assert.Equal(t, "rtp", dial["stream_bidirectional_mode"])
	streamURL, _ := dial["stream_url"].(string)
	assert.Contains(t, streamURL, "ws://bridge.example.test/api/voice/stream/"+resp["stream_id"])
	assert.Contains(t, streamURL, "token=")

	// the call is parked until the provider connects the media stream
	prepared, ok := engine.Lookup(resp["stream_id"])
	require.True(t, ok)
	assert.Equal(t, "cc-123", prepared.Profile.CallControlID)

	logEntry, err := models.GetCallLogByControlID(db, "cc-123")
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusInitiated, logEntry.Status)
	assert.Equal(t, "telnyx", logEntry.ProviderName)
}

func TestStartCallWithoutProviderConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	db := testDB(t) // no seeded rows
	router := NewRouter(cfg, db, call.NewEngine(cfg, db, nil))

	body, _ := json.Marshal(gin.H{"to_number": "+15550002222"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/call", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "configuration missing")
}

func TestStreamAuth(t *testing.T) {
	api := &fakeProviderAPI{}
	srv := api.server(t)
	defer srv.Close()

	router, _, engine := newTestRouter(t, srv.URL)

	body, _ := json.Marshal(gin.H{"to_number": "+15550002222"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/call", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// wrong token is rejected before the websocket upgrade
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/voice/stream/"+resp["stream_id"]+"?token=wrong", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// unknown stream id
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/voice/stream/nope?token=x", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the prepared call survives failed connection attempts
	_, ok := engine.Lookup(resp["stream_id"])
	assert.True(t, ok)
}

func TestWebhookAuthAndRouting(t *testing.T) {
	api := &fakeProviderAPI{}
	srv := api.server(t)
	defer srv.Close()

	router, _, _ := newTestRouter(t, srv.URL)

	event := []byte(`{"data":{"event_type":"call.hangup","payload":{"call_control_id":"cc-unknown","hangup_cause":"normal_clearing"}}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/webhook/nobody", bytes.NewReader(event))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/voice/webhook/telnyx", bytes.NewReader(event))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a hangup for a call that already ended is acknowledged quietly
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/voice/webhook/telnyx", bytes.NewReader(event))
	req.Header.Set("X-Webhook-Secret", "hook-secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookAnswersInboundCall(t *testing.T) {
	api := &fakeProviderAPI{}
	srv := api.server(t)
	defer srv.Close()

	router, db, engine := newTestRouter(t, srv.URL)

	event := []byte(`{"data":{"event_type":"call.initiated","payload":{
		"call_control_id":"cc-in-1","direction":"incoming",
		"from":"+15550009999","to":"+15550001111"}}}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/webhook/telnyx", bytes.NewReader(event))
	req.Header.Set("X-Webhook-Secret", "hook-secret")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "answered", resp["status"])
	require.NotEmpty(t, resp["stream_id"])

	// the answer action carried our stream URL
	require.Len(t, api.answers, 1)
	streamURL, _ := api.answers[0]["stream_url"].(string)
	assert.Contains(t, streamURL, "/api/voice/stream/"+resp["stream_id"])
	assert.Equal(t, "both_tracks", api.answers[0]["stream_track"])

	prepared, ok := engine.Lookup(resp["stream_id"])
	require.True(t, ok)
	assert.Equal(t, models.DirectionInbound, prepared.Profile.Direction)
	assert.Equal(t, "+15550009999", prepared.Profile.FromNumber)

	logEntry, err := models.GetCallLogByControlID(db, "cc-in-1")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionInbound, logEntry.Direction)
}

func TestRecentCalls(t *testing.T) {
	api := &fakeProviderAPI{}
	srv := api.server(t)
	defer srv.Close()

	router, db, _ := newTestRouter(t, srv.URL)
	require.NoError(t, models.CreateCallLog(db, &models.CallLog{
		CallControlID: "cc-old",
		Direction:     models.DirectionOutbound,
		Status:        models.CallStatusCompleted,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/voice/calls", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cc-old")
}
