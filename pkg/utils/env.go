package utils

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads the .env file for the given environment. An empty env loads
// the plain .env file; otherwise .env.<env> is tried first with .env as
// fallback.
func LoadEnv(env string) error {
	if env != "" {
		name := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(name); err == nil {
			return godotenv.Load(name)
		}
	}
	return godotenv.Load()
}

// GetEnv returns the raw environment variable value.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetIntEnv returns the environment variable as int64, 0 when unset or invalid.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetBoolEnv returns the environment variable as bool, false when unset or invalid.
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

// GetFloatEnv returns the environment variable as float64, 0 when unset or invalid.
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(os.Getenv(key))
}

const randChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandText generates a random alphanumeric string of the given length.
func RandText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randChars[rand.Intn(len(randChars))]
	}
	return string(b)
}
