package envHelper

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file from the working directory if one exists.
func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		// Not fatal, just log the error and continue
		log.Println("Couldn't load .env file:", err)
	}
}

// GetEnvVariable returns a required variable and exits when it is not set.
func GetEnvVariable(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s not set", key)
	}
	return value
}

func GetEnvOrDefault(key, def string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	return value
}

func GetEnvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", key, value, err)
		return def
	}
	return i
}

// GetEnvDuration accepts Go duration strings ("1m30s") or plain seconds ("90").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", key, value, err)
		return def
	}
	return d
}

func GetEnvBool(key string, def bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		log.Printf("Ignoring %s=%q: not a boolean", key, value)
		return def
	}
}

// GetEnvList splits a comma separated variable, trimming blanks.
func GetEnvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
