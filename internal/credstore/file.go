package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/codequota/internal/logger"
)

const fileVersion = 1

// debounceInterval collapses the burst of events an editor save produces.
const debounceInterval = 100 * time.Millisecond

// credentialsFile represents the JSON file structure of a FileStore.
type credentialsFile struct {
	Entries map[string][]byte `json:"entries"`
	Version int               `json:"version"`
}

// FileStore keeps records in a JSON file and reloads it when another
// process changes it.
type FileStore struct {
	entries       map[string][]byte
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	filePath      string
	mu            sync.RWMutex
	timerMu       sync.Mutex
	closeOnce     sync.Once
}

// NewFile loads the file at filePath, creating it when missing, and starts
// watching it.
func NewFile(filePath string) (*FileStore, error) {
	s := &FileStore{
		entries:   make(map[string][]byte),
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	entries, err := s.readFile()
	switch {
	case os.IsNotExist(err):
		if err := s.writeFileLocked(); err != nil {
			return nil, fmt.Errorf("failed to create credentials file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	default:
		s.entries = entries
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.filePath
}

// Events returns the channel of external change notifications.
func (s *FileStore) Events() <-chan Event {
	return s.eventChan
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(value), nil
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.entries[key]
	s.entries[key] = slices.Clone(value)

	if err := s.writeFileLocked(); err != nil {
		// Rollback
		if existed {
			s.entries[key] = previous
		} else {
			delete(s.entries, key)
		}
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Delete implements Store. All keys are removed in one file write.
func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string][]byte)
	for _, key := range keys {
		if value, ok := s.entries[key]; ok {
			removed[key] = value
			delete(s.entries, key)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	if err := s.writeFileLocked(); err != nil {
		maps.Copy(s.entries, removed)
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *FileStore) readFile() (map[string][]byte, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return make(map[string][]byte), nil
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if file.Entries == nil {
		file.Entries = make(map[string][]byte)
	}
	return file.Entries, nil
}

// writeFileLocked saves entries to the JSON file (must hold lock).
func (s *FileStore) writeFileLocked() error {
	data, err := json.MarshalIndent(credentialsFile{Entries: s.entries, Version: fileVersion}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write to temp file first, then rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// startWatcher starts the file system watcher.
func (s *FileStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory: the file is replaced by rename on every save.
	dir := filepath.Dir(s.filePath)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.timerMu.Lock()
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
				s.timerMu.Unlock()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads the file and reports the keys whose value
// differs from what this process holds. Writes made through this store
// produce no event.
func (s *FileStore) handleFileChange() {
	// Read under the lock so a concurrent Put cannot interleave its write.
	s.mu.Lock()
	entries, err := s.readFile()
	if os.IsNotExist(err) {
		entries = make(map[string][]byte)
	} else if err != nil {
		s.mu.Unlock()
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	changed := diffKeys(s.entries, entries)
	if len(changed) > 0 {
		s.entries = entries
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return
	}

	logger.Debug("credentials file changed externally", "keys", changed)
	s.sendEvent(Event{Type: EventChanged, Keys: changed})
}

// diffKeys returns the sorted keys that differ between a and b.
func diffKeys(a, b map[string][]byte) []string {
	var changed []string
	for key, av := range a {
		if bv, ok := b[key]; !ok || !bytes.Equal(av, bv) {
			changed = append(changed, key)
		}
	}
	for key := range b {
		if _, ok := a[key]; !ok {
			changed = append(changed, key)
		}
	}
	slices.Sort(changed)
	return changed
}

// sendEvent sends an event to the event channel non-blocking.
func (s *FileStore) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)

		s.timerMu.Lock()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.timerMu.Unlock()

		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
