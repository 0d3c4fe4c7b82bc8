package p2p

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/zkfocil/zkfocil/log"
)

// LoggerAdapter routes watermill's logging into the module logger.
type LoggerAdapter struct {
	log *log.Logger
}

// NewLoggerAdapter wraps l.
func NewLoggerAdapter(l *log.Logger) watermill.LoggerAdapter {
	return &LoggerAdapter{log: l}
}

func fieldArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (a *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(fieldArgs(fields), "err", err)...)
}

func (a *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	// watermill's info output is per message; keep it out of the node log.
	a.log.Debug(msg, fieldArgs(fields)...)
}

func (a *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldArgs(fields)...)
}

func (a *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {}

func (a *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{log: a.log.With(fieldArgs(fields)...)}
}
