package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// StoredFile describes one file in the managed upload directory.
type StoredFile struct {
	Name    string
	ModTime time.Time
}

// Store defines the interface for upload storage backends.
// This allows swapping the filesystem for an object store later.
type Store interface {
	Save(name string, data io.Reader) (int64, error)
	Path(name string) (string, error)
	Delete(name string) error
	List() ([]StoredFile, error)
	EnsureDir() error
}

// FileSystemStore keeps uploaded files in a single managed directory.
// Names are reduced to their base component, so callers cannot reach outside
// the directory regardless of input.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data from a reader to a file with the given name.
// Returns the number of bytes written.
func (fs *FileSystemStore) Save(name string, data io.Reader) (int64, error) {
	filePath := fs.filePath(name)

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Path returns the absolute path of a stored file.
// Returns an error if the file does not exist.
func (fs *FileSystemStore) Path(name string) (string, error) {
	filePath := fs.filePath(name)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file %s not found in storage", name)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	return filePath, nil
}

// Delete removes a stored file. Deleting an absent file is not an error.
func (fs *FileSystemStore) Delete(name string) error {
	filePath := fs.filePath(name)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// List returns the names and modification times of all stored files.
func (fs *FileSystemStore) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var files []StoredFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{Name: entry.Name(), ModTime: info.ModTime()})
	}
	return files, nil
}

func (fs *FileSystemStore) filePath(name string) string {
	return filepath.Join(fs.basePath, filepath.Base(name))
}
