// Package genlog writes the append-only JSON-Lines logs: one file of
// generation attempts and one of captured leads.
package genlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hausgeist-ai/hausgeist/pkg/models"
)

const (
	generationsFile = "generations.jsonl"
	leadsFile       = "leads.jsonl"

	maxAddressLen = 120
	maxErrorLen   = 200
)

// Logger appends structured entries to the generation and lead logs.
// Entries are written once and never updated or deleted.
type Logger struct {
	mu      sync.Mutex
	genPath string
	gen     *os.File
	leads   *os.File
}

// New creates dataDir if needed and opens both log files for appending.
func New(dataDir string) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	genPath := filepath.Join(dataDir, generationsFile)
	gen, err := os.OpenFile(genPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open generation log: %w", err)
	}

	leads, err := os.OpenFile(filepath.Join(dataDir, leadsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		gen.Close()
		return nil, fmt.Errorf("open leads log: %w", err)
	}

	return &Logger{genPath: genPath, gen: gen, leads: leads}, nil
}

// Log appends one generation attempt. Oversized fields are truncated so a
// hostile payload cannot bloat the log.
func (l *Logger) Log(entry models.GenerationLogEntry) error {
	entry.Address = truncate(entry.Address, maxAddressLen)
	entry.Error = truncate(entry.Error, maxErrorLen)

	return l.append(l.gen, entry)
}

// LogLead appends one captured lead.
func (l *Logger) LogLead(lead models.Lead) error {
	lead.Address = truncate(lead.Address, maxAddressLen)
	return l.append(l.leads, lead)
}

func (l *Logger) append(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

// Stats re-reads the full generation log and aggregates it. Malformed
// lines are skipped rather than failing the whole parse.
func (l *Logger) Stats() (models.GenerationStats, error) {
	f, err := os.Open(l.genPath)
	if err != nil {
		return models.GenerationStats{}, fmt.Errorf("open generation log: %w", err)
	}
	defer f.Close()

	stats := models.GenerationStats{ByStyle: make(map[string]int)}
	var totalDuration int64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry models.GenerationLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		stats.Total++
		if entry.Success {
			stats.Successes++
		} else {
			stats.Failures++
		}
		if entry.Fallback {
			stats.Fallbacks++
		}
		stats.TotalCost += entry.EstimatedCost
		totalDuration += entry.DurationMs
		stats.ByStyle[entry.StyleID]++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read generation log: %w", err)
	}

	if stats.Total > 0 {
		stats.AvgDurationMs = totalDuration / int64(stats.Total)
	}
	return stats, nil
}

// Close closes both log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.gen.Close(); err != nil {
		l.leads.Close()
		return err
	}
	return l.leads.Close()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
