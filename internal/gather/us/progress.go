package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker persists download progress as dot files next to the data:
// .tried-empty lists symbols that returned no bars, .last-completed holds the
// end date of the last finished run. Together they make reruns cheap and
// crash recovery safe.
type progressTracker struct {
	mu         sync.Mutex
	triedEmpty map[string]struct{}
	writer     *bufio.Writer
	file       *os.File
	dir        string
}

// newProgressTracker roots a tracker at dir, creating it if needed, and
// loads any existing .tried-empty entries.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	pt := &progressTracker{
		triedEmpty: make(map[string]struct{}),
		dir:        dir,
	}

	data, err := os.ReadFile(pt.emptyPath())
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				pt.triedEmpty[sym] = struct{}{}
			}
		}
	}
	if err := pt.openEmptyFile(); err != nil {
		return nil, err
	}
	return pt, nil
}

func (p *progressTracker) emptyPath() string {
	return filepath.Join(p.dir, ".tried-empty")
}

func (p *progressTracker) completedPath() string {
	return filepath.Join(p.dir, ".last-completed")
}

// openEmptyFile opens .tried-empty for appending. Caller holds the lock or
// is the constructor.
func (p *progressTracker) openEmptyFile() error {
	f, err := os.OpenFile(p.emptyPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening .tried-empty: %w", err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

// IsTriedEmpty reports whether the symbol already came back without data.
func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.triedEmpty[symbol]
	return ok
}

// MarkEmpty records symbols that returned no bars.
func (p *progressTracker) MarkEmpty(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		if _, ok := p.triedEmpty[sym]; ok {
			continue
		}
		p.triedEmpty[sym] = struct{}{}
		if _, err := p.writer.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing to .tried-empty: %w", err)
		}
	}
	return p.writer.Flush()
}

// MarkCompleted records the end date of a finished run.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(p.completedPath(), []byte(date), 0o644)
}

// IsCompleted reports whether a run for the given end date already finished.
func (p *progressTracker) IsCompleted(date string) bool {
	return p.LastCompleted() == date
}

// LastCompleted returns the recorded end date, or "" when none exists.
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.completedPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset drops all tried-empty markers, on disk and in memory.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file != nil {
		p.file.Close()
	}
	p.triedEmpty = make(map[string]struct{})
	os.Remove(p.emptyPath())
	return p.openEmptyFile()
}

// Close flushes and closes the .tried-empty file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
