package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	c.Source.Type = getEnvOrDefault("INBOXAGENT_SOURCE", c.Source.Type)
	c.Source.ReplayFile = getEnvOrDefault("INBOXAGENT_REPLAY_FILE", c.Source.ReplayFile)
	c.Sender.Type = getEnvOrDefault("INBOXAGENT_SENDER", c.Sender.Type)

	c.Google.ClientID = getEnvOrDefault("GOOGLE_CLIENT_ID", c.Google.ClientID)
	c.Google.ClientSecret = getEnvOrDefault("GOOGLE_CLIENT_SECRET", c.Google.ClientSecret)
	c.Google.Account = getEnvOrDefault("GOOGLE_ACCOUNT", c.Google.Account)
	c.Google.TokenDir = getEnvOrDefault("GOOGLE_TOKEN_DIR", c.Google.TokenDir)

	c.IMAP.Addr = getEnvOrDefault("IMAP_ADDR", c.IMAP.Addr)
	c.IMAP.Username = getEnvOrDefault("YAHOO_EMAIL", c.IMAP.Username)
	c.IMAP.Password = getEnvOrDefault("YAHOO_PASSWORD", c.IMAP.Password)

	c.Inference.Provider = getEnvOrDefault("INBOXAGENT_INFERENCE", c.Inference.Provider)
	c.Inference.Model = getEnvOrDefault("GEMINI_MODEL", c.Inference.Model)
	c.Inference.APIKey = getEnvOrDefault("GEMINI_API_KEY", c.Inference.APIKey)

	c.Persistence.Type = getEnvOrDefault("INBOXAGENT_STATE_TYPE", c.Persistence.Type)
	c.Persistence.Path = getEnvOrDefault("INBOXAGENT_STATE_PATH", c.Persistence.Path)
	c.Persistence.Valkey.URL = getEnvOrDefault("VALKEY_URL", c.Persistence.Valkey.URL)
	c.Persistence.Valkey.Password = getEnvOrDefault("VALKEY_PASSWORD", c.Persistence.Valkey.Password)
	c.Persistence.Valkey.TLSEnabled = getEnvBoolOrDefault("VALKEY_TLS_ENABLED", c.Persistence.Valkey.TLSEnabled)

	c.Reports.Dir = getEnvOrDefault("INBOXAGENT_REPORT_DIR", c.Reports.Dir)
	c.Reports.Recipients = getEnvListOrDefault("INBOXAGENT_REPORT_TO", c.Reports.Recipients)
	c.Tender.Dir = getEnvOrDefault("INBOXAGENT_TENDER_DIR", c.Tender.Dir)

	c.PollInterval = getEnvDurationOrDefault("INBOXAGENT_POLL_INTERVAL", c.PollInterval)
	c.Concurrency = getEnvIntOrDefault("INBOXAGENT_CONCURRENCY", c.Concurrency)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the boolean value of an environment variable or a default value.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma-separated variable.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
