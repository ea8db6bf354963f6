// Package bootstate keeps a small JSON record of start attempts so that
// `vzkit status` can report what happened last, even from another process.
package bootstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome of the most recent start.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSubmitted Outcome = "submitted"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Record holds start history that survives restarts.
type Record struct {
	// LastStart is when a start was last submitted.
	LastStart time.Time `json:"last_start,omitempty"`

	// LastCompletion is when the last completion handler ran.
	LastCompletion time.Time `json:"last_completion,omitempty"`

	// StartCount is the number of submitted starts.
	StartCount int `json:"start_count"`

	// FailureCount is the number of starts that completed with an error.
	FailureCount int `json:"failure_count"`

	LastOutcome Outcome `json:"last_outcome,omitempty"`

	// Backend names the hypervisor backend used for the last start.
	Backend string `json:"backend,omitempty"`

	// QueueLabel is the dispatch queue label of the last machine.
	QueueLabel string `json:"queue_label,omitempty"`

	// LastErrorDomain and LastErrorCode identify the last native failure.
	LastErrorDomain string `json:"last_error_domain,omitempty"`
	LastErrorCode   int    `json:"last_error_code,omitempty"`

	// LastError is the rendered form of the last failure.
	LastError string `json:"last_error,omitempty"`
}

// Failure describes a failed completion.
type Failure struct {
	Domain string
	Code   int
	Text   string
}

// File manages the record on disk. Its methods are safe for concurrent use;
// completions are recorded from the dispatch queue goroutine.
type File struct {
	mu   sync.Mutex
	path string
}

// Open returns a manager for the record in dataDir.
func Open(dataDir string) *File {
	return &File{path: filepath.Join(dataDir, "bootstate.json")}
}

// Load reads the record. A missing file yields an empty record.
func (f *File) Load() (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (*Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read boot state: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse boot state: %w", err)
	}
	return &rec, nil
}

// Save writes the record atomically.
func (f *File) Save(rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(rec)
}

func (f *File) save(rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create boot state dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal boot state: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write boot state: %w", err)
	}
	return os.Rename(tmpPath, f.path)
}

func (f *File) update(fn func(*Record)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.load()
	if err != nil {
		return err
	}
	fn(rec)
	return f.save(rec)
}

// RecordSubmitted notes a start that was handed to the machine's queue.
func (f *File) RecordSubmitted(backend, queueLabel string) error {
	return f.update(func(rec *Record) {
		rec.LastStart = time.Now()
		rec.StartCount++
		rec.LastOutcome = OutcomeSubmitted
		rec.Backend = backend
		rec.QueueLabel = queueLabel
	})
}

// RecordCompletion notes the outcome delivered by the completion handler.
// A nil failure means the machine started.
func (f *File) RecordCompletion(fail *Failure) error {
	return f.update(func(rec *Record) {
		rec.LastCompletion = time.Now()
		if fail == nil {
			rec.LastOutcome = OutcomeSucceeded
			rec.LastErrorDomain = ""
			rec.LastErrorCode = 0
			rec.LastError = ""
			return
		}
		rec.LastOutcome = OutcomeFailed
		rec.FailureCount++
		rec.LastErrorDomain = fail.Domain
		rec.LastErrorCode = fail.Code
		rec.LastError = fail.Text
	})
}

// Path returns the record file path.
func (f *File) Path() string {
	return f.path
}
