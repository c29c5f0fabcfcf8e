package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aliconcon/chatwidget/internal/logger"
)

// loadEnv reads .env only outside production (in containers/prod config comes
// from the environment alone).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		idx := strings.LastIndex(parent, "/")
		if idx <= 0 {
			return
		}
		dir = parent[:idx]
		if dir == "" {
			dir = "/"
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// RedisConfig configures Redis for the persisted-token store (optional).
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Config holds widget endpoints and timer intervals.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// WSURL is the base URL of the AI assistant socket. An http(s) scheme is
	// rewritten to ws(s) and the path is normalized to end in /chat.
	WSURL string `yaml:"ws_url"`
	// APIURL is the backend base URL (REST collaborators + shop socket).
	APIURL string `yaml:"api_url"`

	// Chat timers.
	ReconnectInterval time.Duration `yaml:"-"`
	HandshakeDelay    time.Duration `yaml:"-"`
	TypingTimeout     time.Duration `yaml:"-"`
	PopupTTL          time.Duration `yaml:"-"`

	// SendTimeout bounds a single socket write.
	SendTimeout time.Duration `yaml:"-"`

	// Redis for the token store; empty URL selects the in-memory store.
	Redis RedisConfig `yaml:"-"`

	// Devserver (stub backend) settings.
	ServerAddr         string `yaml:"server_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	LogLevel string `yaml:"log_level"`
}

// yamlConfig is the intermediate structure for YAML parsing (durations in units).
type yamlConfig struct {
	WSURL                string `yaml:"ws_url"`
	APIURL               string `yaml:"api_url"`
	ReconnectIntervalSec int    `yaml:"reconnect_interval_sec"`
	HandshakeDelayMs     int    `yaml:"handshake_delay_ms"`
	TypingTimeoutSec     int    `yaml:"typing_timeout_sec"`
	PopupTTLMs           int    `yaml:"popup_ttl_ms"`
	SendTimeoutSec       int    `yaml:"send_timeout_sec"`
	ServerAddr           string `yaml:"server_addr"`
	CORSAllowedOrigins   string `yaml:"cors_allowed_origins"`
	LogLevel             string `yaml:"log_level"`
}

// Load loads the configuration.
// .env variables are applied first (if present), then YAML, then env (env wins).
func Load() *Config {
	loadEnv()
	yc := yamlConfig{
		WSURL:                "ws://localhost:8000/chat",
		APIURL:               "http://localhost:8000",
		ReconnectIntervalSec: 3,
		HandshakeDelayMs:     500,
		TypingTimeoutSec:     3,
		PopupTTLMs:           2000,
		SendTimeoutSec:       10,
		ServerAddr:           ":8000",
		CORSAllowedOrigins:   "*",
		LogLevel:             "info",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/widget.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	return &Config{
		WSURL:              envStr("WS_URL", yc.WSURL),
		APIURL:             envStr("API_URL", yc.APIURL),
		ReconnectInterval:  time.Duration(envInt("RECONNECT_INTERVAL_SEC", yc.ReconnectIntervalSec)) * time.Second,
		HandshakeDelay:     time.Duration(envInt("HANDSHAKE_DELAY_MS", yc.HandshakeDelayMs)) * time.Millisecond,
		TypingTimeout:      time.Duration(envInt("TYPING_TIMEOUT_SEC", yc.TypingTimeoutSec)) * time.Second,
		PopupTTL:           time.Duration(envInt("POPUP_TTL_MS", yc.PopupTTLMs)) * time.Millisecond,
		SendTimeout:        time.Duration(envInt("SEND_TIMEOUT_SEC", yc.SendTimeoutSec)) * time.Second,
		Redis:              RedisConfig{URL: envStr("REDIS_URL", "")},
		ServerAddr:         envStr("SERVER_ADDR", yc.ServerAddr),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
	}
}

// envStr returns the environment variable value or fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the numeric environment variable value or fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
