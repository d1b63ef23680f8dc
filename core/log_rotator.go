package core

import (
	"fmt"
	"os"
	"sync"
)

// LogRotator is a size-capped file writer for the run log. Rotation is
// ping-pong: one ".old" backup, so a long run can never fill the disk with
// log history.
type LogRotator struct {
	filename    string
	maxSize     int64
	file        *os.File
	mu          sync.Mutex
	currentSize int64
}

// NewLogRotator opens (or appends to) filename, rotating once the file
// exceeds maxSizeMB.
func NewLogRotator(filename string, maxSizeMB int) (*LogRotator, error) {
	r := &LogRotator{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LogRotator) openFile() error {
	file, err := os.OpenFile(r.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	r.file = file
	r.currentSize = stat.Size()
	return nil
}

func (r *LogRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentSize+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			// Keep writing to the current file rather than losing log lines.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

func (r *LogRotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}

	backup := r.filename + ".old"
	os.Remove(backup)
	if err := os.Rename(r.filename, backup); err != nil {
		return err
	}
	return r.openFile()
}

func (r *LogRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
