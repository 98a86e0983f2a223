// Package logsink writes timestamped diagnostic lines to one append-only file
// per day. Writing never fails the caller; failures are counted instead.
package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Options configures a Sink.
type Options struct {
	Dir string
	// Mirror also writes every line to stdout.
	Mirror bool
}

// Sink appends lines to <Dir>/log-YYYY-MM-DD.log.
type Sink struct {
	logger *zap.Logger
	file   *datedFile
	errors atomic.Int64
}

// New creates a sink. The directory and the file are created on first write.
func New(opts Options) *Sink {
	s := &Sink{}
	s.file = &datedFile{dir: opts.Dir, now: time.Now}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: ": ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format(timestampLayout))
		},
	})

	core := zapcore.NewCore(encoder, s.file, zapcore.DebugLevel)
	if opts.Mirror {
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapcore.DebugLevel))
	}
	s.logger = zap.New(core, zap.ErrorOutput(zapcore.AddSync(errorCounter{s})))
	return s
}

// Append writes line with the current timestamp. Empty lines are dropped.
func (s *Sink) Append(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	s.logger.Info(line)
}

// Errors returns how many writes have failed since the sink was created.
func (s *Sink) Errors() int64 {
	return s.errors.Load()
}

// Close flushes and closes the current file.
func (s *Sink) Close() error {
	_ = s.logger.Sync()
	return s.file.Close()
}

// errorCounter receives zap's internal write error reports.
type errorCounter struct {
	s *Sink
}

func (e errorCounter) Write(p []byte) (int, error) {
	e.s.errors.Add(1)
	return len(p), nil
}

// datedFile is a WriteSyncer that switches files when the day changes.
type datedFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func (d *datedFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().UTC().Format("2006-01-02")
	if d.file == nil || d.day != day {
		if err := d.rotate(day); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

func (d *datedFile) rotate(day string) error {
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(d.dir, fileName(day)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.file = f
	d.day = day
	return nil
}

func (d *datedFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *datedFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func fileName(day string) string {
	return "log-" + day + ".log"
}
