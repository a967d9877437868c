package wasm

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/encoding/unicode"
)

// ConsoleSink receives what the guest writes to one of its console file
// descriptors and forwards it, line by line, to a leveled logger.
//
// Guest output is decoded as UTF-8; ill-formed sequences are replaced with
// U+FFFD rather than dropped. A trailing partial line is held until the next
// newline or Flush.
type ConsoleSink struct {
	logger *zap.Logger
	level  zapcore.Level
	fd     int

	mu      sync.Mutex
	pending []byte
}

// NewConsoleSink creates a sink for descriptor fd that logs at level.
func NewConsoleSink(logger *zap.Logger, fd int, level zapcore.Level) *ConsoleSink {
	return &ConsoleSink{
		logger: logger.With(zap.String("component", "wasm-console"), zap.Int("fd", fd)),
		level:  level,
		fd:     fd,
	}
}

// Write implements io.Writer. It never fails; the guest must not be able to
// observe host logging problems.
func (s *ConsoleSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, p...)
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		s.emit(s.pending[:i])
		s.pending = s.pending[i+1:]
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (s *ConsoleSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		s.emit(s.pending)
		s.pending = nil
	}
}

func (s *ConsoleSink) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	text, err := unicode.UTF8.NewDecoder().Bytes(line)
	if err != nil {
		text = line
	}
	if ce := s.logger.Check(s.level, string(text)); ce != nil {
		ce.Write()
	}
}
