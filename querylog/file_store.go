package querylog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/golang/snappy"
)

// FileStore appends records to a snappy-framed file of JSON lines. The
// framed format is streamable, so ByFingerprint can scan a file that is
// still being appended to.
type FileStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *snappy.Writer
}

// NewFileStore opens (or creates) a record log at path.
func NewFileStore(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open query log %s: %w", path, err)
	}
	return &FileStore{
		path:   path,
		file:   file,
		writer: snappy.NewBufferedWriter(file),
	}, nil
}

// Append persists one record and flushes it to disk.
func (fs *FileStore) Append(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode query log record: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := fs.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write query log record: %w", err)
	}
	return fs.writer.Flush()
}

// ByFingerprint scans the log and returns all records sharing a
// fingerprint, oldest first.
func (fs *FileStore) ByFingerprint(fingerprint string) ([]Record, error) {
	fs.mu.Lock()
	if err := fs.writer.Flush(); err != nil {
		fs.mu.Unlock()
		return nil, err
	}
	fs.mu.Unlock()

	file, err := os.Open(fs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query log %s: %w", fs.path, err)
	}
	defer file.Close()

	var out []Record
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("failed to decode query log record: %w", err)
		}
		if record.Fingerprint == fingerprint {
			out = append(out, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan query log: %w", err)
	}
	return out, nil
}

// Close flushes and closes the underlying file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.writer.Close(); err != nil {
		fs.file.Close()
		return err
	}
	return fs.file.Close()
}
