package constants

// Database table names
const (
	TABLE_PROVIDER_CONFIGS = "provider_configs"
	TABLE_VOICE_CONFIGS    = "voice_configs"
	TABLE_CALL_LOGS        = "call_logs"
	TABLE_USER_CHANNELS    = "user_channels"
)
