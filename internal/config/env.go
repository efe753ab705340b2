// Package config provides shared configuration utilities.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GetEnv returns the value of the environment variable named by the key,
// or fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// Config is the client configuration.
type Config struct {
	ServerURL       string        // Base URL of the game server (http or https)
	WebSocketPath   string        // Raw WebSocket endpoint of the STOMP broker
	LeaderboardPath string        // Leaderboard read API
	LogFile         string        // Client log file; terminal clients never log to the terminal
	LogLevel        string        // debug, info, warn or error
	KeyHold         time.Duration // How long a key counts as held after its last report
	FPS             int           // Frame rate of the render task
	ColorProfile    string        // Forced colour profile, empty for detection
	HTTPTimeout     time.Duration // Leaderboard request timeout
}

// Defaults.
const (
	DefaultServerURL       = "http://localhost:8080"
	DefaultWebSocketPath   = "/ws-office-escape/websocket"
	DefaultLeaderboardPath = "/api/leaderboard"
	DefaultLogFile         = "officeescape.log"
	DefaultLogLevel        = "info"
	DefaultKeyHold         = 180 * time.Millisecond
	DefaultFPS             = 60
	DefaultHTTPTimeout     = 5 * time.Second
)

// Load reads a .env file if present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		ServerURL:       strings.TrimRight(GetEnv("OE_SERVER_URL", DefaultServerURL), "/"),
		WebSocketPath:   GetEnv("OE_WS_PATH", DefaultWebSocketPath),
		LeaderboardPath: GetEnv("OE_LEADERBOARD_PATH", DefaultLeaderboardPath),
		LogFile:         GetEnv("OE_LOG_FILE", DefaultLogFile),
		LogLevel:        GetEnv("OE_LOG_LEVEL", DefaultLogLevel),
		ColorProfile:    strings.ToLower(GetEnv("OE_COLOR_PROFILE", "")),
	}

	var err error
	if cfg.KeyHold, err = durationEnv("OE_KEY_HOLD", DefaultKeyHold); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = durationEnv("OE_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return Config{}, err
	}

	fps := GetEnv("OE_FPS", "")
	cfg.FPS = DefaultFPS
	if fps != "" {
		n, err := strconv.Atoi(fps)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("OE_FPS: invalid frame rate %q", fps)
		}
		cfg.FPS = n
	}
	return cfg, nil
}

// FrameTime returns the target duration of one frame.
func (c Config) FrameTime() time.Duration {
	if c.FPS <= 0 {
		return time.Second / DefaultFPS
	}
	return time.Second / time.Duration(c.FPS)
}

// WebSocketURL returns the broker endpoint with a ws or wss scheme.
func (c Config) WebSocketURL() string {
	base := c.ServerURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.WebSocketPath
}

// LeaderboardURL returns the full leaderboard endpoint.
func (c Config) LeaderboardURL() string {
	return c.ServerURL + c.LeaderboardPath
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
