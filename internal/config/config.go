package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Chat transport: "cloud" talks to the WhatsApp Cloud API,
	// "console" echoes replies to stdout for local development.
	Transport string

	// WhatsApp Cloud API
	WhatsAppToken       string
	WhatsAppPhoneID     string
	WhatsAppVerifyToken string

	// AllowedSender, when set, restricts the bot to a single phone
	// number. Empty means anyone may talk to it.
	AllowedSender string

	// Gemini
	GeminiModel string

	// AMQP (optional; empty URL disables the queue)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Scheduler
	SweepSchedule    string
	ReportSchedule   string
	SweepConcurrency int
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bought.db"),

		Transport: getEnv("CHAT_TRANSPORT", "cloud"),

		WhatsAppToken:       getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),

		AllowedSender: getEnv("ALLOWED_SENDER", ""),

		GeminiModel: getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bought"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "inbound_messages"),

		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "0 18 * * *"),
		ReportSchedule:   getEnv("REPORT_SCHEDULE", "0 20 * * *"),
		SweepConcurrency: getEnvInt("SWEEP_CONCURRENCY", 4),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate transport
	validTransports := []string{"cloud", "console"}
	isValidTransport := false
	for _, transport := range validTransports {
		if c.Transport == transport {
			isValidTransport = true
			break
		}
	}
	if !isValidTransport {
		errors = append(errors, fmt.Sprintf("invalid chat transport '%s': must be one of %v", c.Transport, validTransports))
	}

	// The cloud transport cannot work without credentials
	if c.Transport == "cloud" {
		if c.WhatsAppToken == "" {
			errors = append(errors, "WHATSAPP_ACCESS_TOKEN is required when using the cloud transport")
		}
		if c.WhatsAppPhoneID == "" {
			errors = append(errors, "WHATSAPP_PHONE_NUMBER_ID is required when using the cloud transport")
		}
		if c.WhatsAppVerifyToken == "" {
			errors = append(errors, "WHATSAPP_VERIFY_TOKEN is required when using the cloud transport")
		}
	}

	// Validate SQLite path
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GeminiModel == "" {
		errors = append(errors, "Gemini model name cannot be empty")
	}

	// Validate scheduler configuration
	if c.SweepConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid sweep concurrency %d: must be at least 1", c.SweepConcurrency))
	} else if c.SweepConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid sweep concurrency %d: must be at most 64", c.SweepConcurrency))
	}
	if c.SweepSchedule == "" {
		errors = append(errors, "sweep schedule cannot be empty")
	}
	if c.ReportSchedule == "" {
		errors = append(errors, "report schedule cannot be empty")
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
