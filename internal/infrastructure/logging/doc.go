// Package logging provides structured logging for the mower bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level and format switches.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("status relayed", "brand", "WX", "serial", serial)
//
// Never log access tokens or broker passwords.
package logging
