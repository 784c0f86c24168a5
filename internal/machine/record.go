package machine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BootHistory is the persisted boot bookkeeping for a machine.
type BootHistory struct {
	LastBoot      time.Time `json:"last_boot"`
	LastShutdown  time.Time `json:"last_shutdown"`
	BootCount     int       `json:"boot_count"`
	CleanShutdown bool      `json:"clean_shutdown"`
}

// BootRecord persists boot history as JSON under a data directory.
// Writes are atomic (temp file plus rename).
type BootRecord struct {
	mu   sync.Mutex
	path string
}

// NewBootRecord creates a record stored at dataDir/boot.json.
func NewBootRecord(dataDir string) *BootRecord {
	return &BootRecord{path: filepath.Join(dataDir, "boot.json")}
}

// Load reads the history. A missing file yields an empty history.
func (r *BootRecord) Load() (*BootHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *BootRecord) load() (*BootHistory, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return &BootHistory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read boot record: %w", err)
	}
	var h BootHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse boot record: %w", err)
	}
	return &h, nil
}

func (r *BootRecord) save(h *BootHistory) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("encode boot record: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write boot record: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write boot record: %w", err)
	}
	return nil
}

// RecordBoot bumps the boot count and timestamps the boot. The clean
// shutdown flag is cleared until a terminal state is observed.
func (r *BootRecord) RecordBoot() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := r.load()
	if err != nil {
		return err
	}
	h.LastBoot = time.Now()
	h.BootCount++
	h.CleanShutdown = false
	return r.save(h)
}

// RecordShutdown timestamps the shutdown and records whether it was clean.
func (r *BootRecord) RecordShutdown(clean bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := r.load()
	if err != nil {
		return err
	}
	h.LastShutdown = time.Now()
	h.CleanShutdown = clean
	return r.save(h)
}
