package storage

import (
	"go.uber.org/zap"
)

// Package-level logger injected by the application. Nil until SetLogger is
// called; the helpers below are no-ops in that window so store construction
// stays usable from tests without wiring logging first.
var log *zap.SugaredLogger

// SetLogger injects the shared structured logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		log = nil
		return
	}
	log = l.Named("storage").Sugar()
}

func logInfo(msg string, kv ...interface{}) {
	if log != nil {
		log.Infow(msg, kv...)
	}
}

func logWarn(msg string, kv ...interface{}) {
	if log != nil {
		log.Warnw(msg, kv...)
	}
}
