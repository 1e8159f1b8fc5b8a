package smartlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghostwatch/ghostwatchd/internal/device"
	"github.com/rs/zerolog/log"
)

const defaultRetentionBytes = 1024 * 1024 // 1 MiB

// lastLogged is the per-identity state the Logger needs to evaluate the
// change/hourly triggers. It is owned by the Logger instance, created at
// daemon start and discarded at shutdown — not a package-level singleton.
type lastLogged struct {
	entry Entry
	at    time.Time
}

// Logger persists history entries to per-identity, per-day JSONL files
// under HistoryRoot, rotating a day's file to numbered siblings once it
// crosses RetentionBytes.
type Logger struct {
	HistoryRoot    string
	RetentionBytes int64

	mu    sync.Mutex
	state map[string]lastLogged

	// fileLocks serializes writes per history file path so two goroutines
	// never interleave writes to the same file.
	fileLocks map[string]*sync.Mutex
}

// NewLogger constructs a Logger rooted at historyRoot. retentionBytes <= 0
// uses the default 1 MiB cap.
func NewLogger(historyRoot string, retentionBytes int64) *Logger {
	if retentionBytes <= 0 {
		retentionBytes = defaultRetentionBytes
	}
	return &Logger{
		HistoryRoot:    historyRoot,
		RetentionBytes: retentionBytes,
		state:          make(map[string]lastLogged),
		fileLocks:      make(map[string]*sync.Mutex),
	}
}

// ShouldLog evaluates the four deterministic triggers against the last
// entry logged for rec.Identity and returns the reason if one applies.
func (l *Logger) ShouldLog(rec *device.DeviceRecord, now time.Time, force bool) (Reason, bool) {
	if force {
		return ReasonManual, true
	}

	l.mu.Lock()
	prev, ok := l.state[rec.Identity.String()]
	l.mu.Unlock()

	if !ok {
		return ReasonFirstScan, true
	}
	if now.Sub(prev.at) >= time.Hour {
		return ReasonHourly, true
	}
	if smartChanged(prev.entry, rec) {
		return ReasonSmartChange, true
	}
	return "", false
}

func smartChanged(prev Entry, curr *device.DeviceRecord) bool {
	c := CriticalAttributes{
		Reallocated:   curr.Attributes.RawOrZero(device.AttrReallocatedSectors),
		Pending:       curr.Attributes.RawOrZero(device.AttrPendingSectors),
		Uncorrectable: curr.Attributes.RawOrZero(device.AttrReportedUncorrectable),
		Timeout:       curr.Attributes.RawOrZero(device.AttrCommandTimeout),
	}
	if c.Reallocated != prev.AttributesCritical.Reallocated ||
		c.Pending != prev.AttributesCritical.Pending ||
		c.Uncorrectable != prev.AttributesCritical.Uncorrectable ||
		c.Timeout != prev.AttributesCritical.Timeout {
		return true
	}
	if curr.GDCState != prev.GDCState {
		return true
	}
	delta := curr.HealthScore - prev.HealthScore
	if delta < 0 {
		delta = -delta
	}
	return delta >= 5
}

// Log writes one history line for rec if a trigger fires, and updates the
// per-identity last-logged state. Returns false with no error if no
// trigger applied.
func (l *Logger) Log(rec *device.DeviceRecord, now time.Time, force bool) (bool, error) {
	reason, fire := l.ShouldLog(rec, now, force)
	if !fire {
		return false, nil
	}

	entry := EntryFromRecord(rec, now, reason)
	if err := l.write(rec.Identity, now, entry); err != nil {
		return false, err
	}

	l.mu.Lock()
	l.state[rec.Identity.String()] = lastLogged{entry: entry, at: now}
	l.mu.Unlock()

	log.Debug().Str("identity", rec.Identity.String()).Str("reason", string(reason)).Msg("history entry written")
	return true, nil
}

func (l *Logger) write(id device.Identity, now time.Time, entry Entry) error {
	dir := filepath.Join(l.HistoryRoot, id.HistoryDir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("smartlog: create history dir: %w", err)
	}

	path := filepath.Join(dir, now.UTC().Format("2006-01-02")+".jsonl")

	lock := l.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := rotateIfNeeded(path, l.RetentionBytes); err != nil {
		return err
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("smartlog: marshal entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("smartlog: open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("smartlog: write history entry: %w", err)
	}
	return nil
}

func (l *Logger) lockFor(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.fileLocks[path]
	if !ok {
		m = &sync.Mutex{}
		l.fileLocks[path] = m
	}
	return m
}
