package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"fooddetect/internal/config"

	"github.com/google/uuid"
)

// StaticPrefix is the URL prefix under which StaticDir is served.
const StaticPrefix = "/static"

// StoredFile describes an image written by FileStore.
type StoredFile struct {
	Name    string // base name on disk
	Path    string // filesystem path
	WebPath string // URL path for templates and API
	Size    int64
}

// FileStore writes uploads and annotated results under the static root.
// Every write uses a fresh UUID and O_EXCL, so concurrent requests never
// share a filename.
type FileStore struct {
	uploadDir string
	resultDir string
}

// NewFileStore creates the upload and result directories if absent.
func NewFileStore(cfg *config.Config) (*FileStore, error) {
	s := &FileStore{
		uploadDir: cfg.UploadDir(),
		resultDir: cfg.ResultDir(),
	}

	for _, dir := range []string{s.uploadDir, s.resultDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return s, nil
}

// UploadName returns "{uuid}{ext}" where ext is the extension of the client filename.
func UploadName(originalFilename string) string {
	return uuid.NewString() + filepath.Ext(filepath.Base(originalFilename))
}

// ResultName returns "result_{uuid}.jpg".
func ResultName() string {
	return fmt.Sprintf("result_%s.jpg", uuid.NewString())
}

// SaveUpload streams r into the uploads directory under a unique name.
func (s *FileStore) SaveUpload(originalFilename string, r io.Reader) (StoredFile, error) {
	name := UploadName(originalFilename)
	f := s.upload(name)

	size, err := writeExclusive(f.Path, r)
	if err != nil {
		return StoredFile{}, err
	}
	f.Size = size
	return f, nil
}

// SaveResult writes an annotated JPEG into the results directory under a unique name.
func (s *FileStore) SaveResult(data []byte) (StoredFile, error) {
	name := ResultName()
	f := s.result(name)

	if err := writeExclusiveBytes(f.Path, data); err != nil {
		return StoredFile{}, err
	}
	f.Size = int64(len(data))
	return f, nil
}

// Upload describes an existing upload by name.
func (s *FileStore) Upload(name string) StoredFile {
	return s.upload(name)
}

// Result describes an existing result by name.
func (s *FileStore) Result(name string) StoredFile {
	return s.result(name)
}

// Remove deletes a stored file. Missing files are not an error.
func (s *FileStore) Remove(f StoredFile) error {
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", f.Path, err)
	}
	return nil
}

// PruneOlderThan removes uploads and results last modified before cutoff,
// whether or not any history row refers to them, and returns how many files
// were removed.
func (s *FileStore) PruneOlderThan(cutoff time.Time) (int, error) {
	removed := 0
	for _, dir := range []string{s.uploadDir, s.resultDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("failed to read %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) upload(name string) StoredFile {
	name = filepath.Base(name)
	return StoredFile{
		Name:    name,
		Path:    filepath.Join(s.uploadDir, name),
		WebPath: path.Join(StaticPrefix, config.UploadSubdir, name),
	}
}

func (s *FileStore) result(name string) StoredFile {
	name = filepath.Base(name)
	return StoredFile{
		Name:    name,
		Path:    filepath.Join(s.resultDir, name),
		WebPath: path.Join(StaticPrefix, config.ResultSubdir, name),
	}
}

// writeExclusive creates filePath (failing if it exists) and copies r into it.
// A partially written file is removed.
func writeExclusive(filePath string, r io.Reader) (int64, error) {
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filePath, err)
	}

	size, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	return size, nil
}

func writeExclusiveBytes(filePath string, data []byte) error {
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filePath, err)
	}

	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	return nil
}
