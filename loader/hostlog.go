package loader

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/gdext-bridge/abi"
)

// hostCore forwards warnings and errors to the host's print entries.
type hostCore struct {
	zapcore.LevelEnabler
	enc   zapcore.Encoder
	table *abi.InterfaceTable
}

func newHostCore(table *abi.InterfaceTable) zapcore.Core {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &hostCore{
		LevelEnabler: zapcore.WarnLevel,
		enc:          zapcore.NewConsoleEncoder(cfg),
		table:        table,
	}
}

func (c *hostCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &hostCore{LevelEnabler: c.LevelEnabler, enc: c.enc.Clone(), table: c.table}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *hostCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *hostCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	text := strings.TrimRight(buf.String(), "\n")
	buf.Free()

	emit := c.table.PrintWarning
	if ent.Level >= zapcore.ErrorLevel {
		emit = c.table.PrintError
	}
	if emit == nil {
		return nil
	}
	var function, file string
	var line int32
	if ent.Caller.Defined {
		function = ent.Caller.Function
		file = ent.Caller.File
		line = int32(ent.Caller.Line)
	}
	emit(text, function, file, line, false)
	return nil
}

func (c *hostCore) Sync() error { return nil }

// newLogger builds the process logger for a bridge on table.
func newLogger(cfg Config, table *abi.InterfaceTable) *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		cfg.level(),
	)
	return zap.New(zapcore.NewTee(console, newHostCore(table)), zap.AddCaller())
}
