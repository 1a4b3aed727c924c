// Package logging provides structured logging for emubot.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version). Components never import slog
// directly; they accept a Debug/Info/Warn/Error interface that *Logger
// satisfies.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: "./data/emubot.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	engineLog := logger.Component("engine")
//	engineLog.Info("run started", "run_id", id)
package logging
