package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_assistant/internal/chat"
)

// ExchangeRecord is one JSONL line in the exchange log. Message content is
// never logged; only shape and attribution.
type ExchangeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id"`
	Kind      string    `json:"kind"`
	Origin    string    `json:"origin,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	State     string    `json:"state,omitempty"`
	Chars     int       `json:"chars,omitempty"`
}

// Config holds exchange logger settings
type Config struct {
	Path          string        // active log file path; rotated files get a timestamp suffix
	MaxSize       int64         // rotate after this many bytes
	MaxFiles      int           // rotated files to keep
	BufferSize    int           // queued records before drops
	FlushInterval time.Duration // periodic flush of the buffered writer
}

// ExchangeLogger writes session activity as JSONL, asynchronously and
// buffered, with size-based rotation. A full queue drops records rather than
// blocking the session.
type ExchangeLogger struct {
	path          string
	maxSize       int64
	maxFiles      int
	flushInterval time.Duration

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	size   int64
	closed bool

	recCh  chan ExchangeRecord
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewExchangeLogger opens the log file and starts the writer goroutine.
func NewExchangeLogger(cfg Config) (*ExchangeLogger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 << 20
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &ExchangeLogger{
		path:          cfg.Path,
		maxSize:       cfg.MaxSize,
		maxFiles:      cfg.MaxFiles,
		flushInterval: cfg.FlushInterval,
		recCh:         make(chan ExchangeRecord, cfg.BufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Watch consumes session events until the channel closes, converting each to
// an exchange record. Run it in its own goroutine.
func (l *ExchangeLogger) Watch(events <-chan chat.Event) {
	for ev := range events {
		rec := ExchangeRecord{
			Timestamp: time.Now(),
			RecordID:  uuid.NewString(),
			Kind:      string(ev.Kind),
			Provider:  string(ev.Provider),
		}
		if ev.Entry != nil {
			rec.Origin = string(ev.Entry.Origin)
			rec.Provider = string(ev.Entry.Provider)
			rec.Chars = len(ev.Entry.Text)
		}
		if ev.Kind == chat.EventStateChanged {
			rec.State = ev.State.String()
		}
		l.Record(rec)
	}
}

// Record queues a record for writing. A full queue drops the record.
func (l *ExchangeLogger) Record(rec ExchangeRecord) {
	select {
	case l.recCh <- rec:
	default:
	}
}

// Shutdown drains the queue, flushes, and closes the file.
func (l *ExchangeLogger) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.doneCh)
	l.wg.Wait()
}

func (l *ExchangeLogger) openFile() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	l.size = fi.Size()
	return nil
}

func (l *ExchangeLogger) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-l.recCh:
			l.writeRecord(rec)
		case <-ticker.C:
			l.mu.Lock()
			_ = l.writer.Flush()
			l.mu.Unlock()
		case <-l.doneCh:
			for {
				select {
				case rec := <-l.recCh:
					l.writeRecord(rec)
				default:
					l.mu.Lock()
					_ = l.writer.Flush()
					_ = l.file.Close()
					l.mu.Unlock()
					return
				}
			}
		}
	}
}

func (l *ExchangeLogger) writeRecord(rec ExchangeRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size+int64(len(line)) > l.maxSize {
		if err := l.rotateLocked(); err != nil {
			return
		}
	}
	if _, err := l.writer.Write(line); err == nil {
		l.size += int64(len(line))
	}
}

// rotateLocked closes the active file, renames it with a timestamp suffix,
// reopens a fresh file, and prunes old rotations. Callers hold l.mu.
func (l *ExchangeLogger) rotateLocked() error {
	_ = l.writer.Flush()
	_ = l.file.Close()

	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().Format("20060102150405.000000000"))
	if err := os.Rename(l.path, rotated); err != nil {
		return err
	}
	if err := l.openFile(); err != nil {
		return err
	}
	l.pruneLocked()
	return nil
}

func (l *ExchangeLogger) pruneLocked() {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return
	}
	// Rotated names sort chronologically by construction.
	sort.Strings(matches)
	for i := 0; i < len(matches)-l.maxFiles; i++ {
		_ = os.Remove(matches[i])
	}
}
