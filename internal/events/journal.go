package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMaxJournalSize is the size at which the journal is rotated (10MB).
	DefaultMaxJournalSize = 10 * 1024 * 1024
	// JournalExtension is the journal file extension.
	JournalExtension = ".jsonl"
	// ArchiveDir holds rotated journals, next to the live one.
	ArchiveDir = "archive"
)

// JournalEntry is one line of the local apontamento journal.
type JournalEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	OrderID   int            `json:"order_id"`
	Origin    string         `json:"origin,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Checksum  string         `json:"checksum,omitempty"`
}

// Journal is an append-only JSONL record of what a session did and received:
// quantities recorded, stops, broadcasts from other sessions. It rotates into
// ArchiveDir when it grows past its max size.
type Journal struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	path            string
	checksums       bool
	rotationCounter int
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string, maxSize int64) (*Journal, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxJournalSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	j := &Journal{path: path, maxSize: maxSize, checksums: true}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) open() error {
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat journal: %w", err)
	}
	j.file = file
	j.currentSize = stat.Size()
	return nil
}

// Record appends an entry stamped with the current time.
func (j *Journal) Record(eventType EventType, orderID int, origin string, details map[string]any) error {
	return j.Write(&JournalEntry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		OrderID:   orderID,
		Origin:    origin,
		Details:   details,
	})
}

// Write appends entry, rotating first when it would exceed the max size.
func (j *Journal) Write(entry *JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("journal closed")
	}
	if j.checksums {
		entry.Checksum = checksum(entry)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	if j.currentSize+int64(len(data)) > j.maxSize && j.currentSize > 0 {
		if err := j.rotate(); err != nil {
			return fmt.Errorf("rotate journal: %w", err)
		}
	}

	n, err := j.file.Write(data)
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	j.currentSize += int64(n)
	return nil
}

func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	archiveDir := filepath.Join(filepath.Dir(j.path), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	j.rotationCounter++
	base := filepath.Base(j.path)
	name := fmt.Sprintf("%s.%s.%d%s",
		base[:len(base)-len(filepath.Ext(base))],
		time.Now().Format("20060102_150405"),
		j.rotationCounter,
		JournalExtension)
	if err := os.Rename(j.path, filepath.Join(archiveDir, name)); err != nil {
		return fmt.Errorf("archive journal: %w", err)
	}
	return j.open()
}

// SetChecksums toggles per-entry checksums. Enabled by default.
func (j *Journal) SetChecksums(enable bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.checksums = enable
}

func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.currentSize
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Sync()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file = nil
	return err
}

func checksum(entry *JournalEntry) string {
	c := *entry
	c.Checksum = ""
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// ReadJournal returns the entries of a journal file, skipping malformed
// lines. valid counts entries whose checksum matches or that carry none.
func ReadJournal(path string) (entries []JournalEntry, valid int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
		if entry.Checksum == "" || checksum(&entry) == entry.Checksum {
			valid++
		}
	}
	if err := scanner.Err(); err != nil {
		return entries, valid, fmt.Errorf("scan journal: %w", err)
	}
	return entries, valid, nil
}
