package config

import "time"

const (
	// Typing
	TypingQuietPeriod = 2 * time.Second

	// WebSocket connection
	WriteWait           = 10 * time.Second
	PongWait            = 60 * time.Second
	PingPeriod          = (PongWait * 9) / 10
	MaxInboundFrame     = 4 * 1024
	DefaultSendBuffer   = 64
	HandshakeTimeout    = 10 * time.Second
	BackgroundOpTimeout = 5 * time.Second

	// Presence
	LastSeenCacheTTL  = 24 * time.Hour
	LastSeenKeyPrefix = "presence:lastseen:"

	// Messages
	MaxMessageCiphertext = 16 * 1024
)
