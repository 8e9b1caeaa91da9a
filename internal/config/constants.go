package config

import "time"

const (
	// Transport
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
	SendBufferSize = 256

	// Client
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultHubHost          = "localhost:3005"
	DefaultHubPath          = "/ws"

	// Hub
	DefaultHubAddr      = ":3005"
	DefaultRedisChannel = "carchat:hub:broadcast"
	// BridgePublishTimeout bounds how long the hub loop waits on a relay publish.
	BridgePublishTimeout = 2 * time.Second

	// History
	HistoryKey        = "chatHistory"
	DefaultHistoryDir = ".carchat"
)
