// Package config provides environment helpers and the settings store for
// facecast commands.
package config

import "os"

// Defaults used when the environment does not override them.
const (
	DefaultListenAddr = ":8080"
	DefaultLogLevel   = "info"
)

// ListenAddr returns the HTTP listen address from FACECAST_LISTEN.
// Falls back to the provided default if not set.
func ListenAddr(defaultAddr string) string {
	if addr := os.Getenv("FACECAST_LISTEN"); addr != "" {
		return addr
	}
	return defaultAddr
}

// LogLevel returns the log level from LOG_LEVEL or DefaultLogLevel.
func LogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return DefaultLogLevel
}

// SensorToken returns the device token from FACECAST_SENSOR_TOKEN.
// Empty means devices are accepted without a token.
func SensorToken() string {
	return os.Getenv("FACECAST_SENSOR_TOKEN")
}
