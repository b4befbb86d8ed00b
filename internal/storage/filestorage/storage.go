package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	rootstorage "tourism_media/internal/storage"
)

const stagingDir = ".staging"

// FileStorage интерфейс для работы с файловым хранилищем
type FileStorage interface {
	Save(ctx context.Context, r io.Reader, subPath, filename string) (filePath string, fileSize int64, err error)
	Delete(ctx context.Context, filePath string) error
	URL(relativePath string) string
}

// Sweepable хранилище, умеющее перечислять старые файлы для очистки
type Sweepable interface {
	ListOlderThan(ctx context.Context, before time.Time) ([]string, error)
	CleanStaging(ctx context.Context, before time.Time) (int, error)
	Delete(ctx context.Context, filePath string) error
}

// LocalFileStorage реализация для локальной файловой системы
type LocalFileStorage struct {
	baseDir string // Базовый каталог для хранения (например: "./uploads")
	baseURL string // Базовый URL для доступа к файлам (например: "http://localhost:8080/uploads")
}

func NewLocalFileStorage(baseDir, baseURL string) (*LocalFileStorage, error) {
	// Создаем директорию вместе с каталогом для незавершенных записей
	if err := os.MkdirAll(filepath.Join(baseDir, stagingDir), 0755); err != nil {
		return nil, err
	}

	return &LocalFileStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save пишет файл во временный каталог и переносит его на место только после полной записи.
// Имя файла генерируется, из filename берется только расширение.
func (s *LocalFileStorage) Save(ctx context.Context, r io.Reader, subPath, filename string) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	subPath = filepath.Clean(subPath)
	if subPath == "." {
		subPath = ""
	}
	if strings.HasPrefix(subPath, "..") || filepath.IsAbs(subPath) || strings.HasPrefix(subPath, stagingDir) {
		return "", 0, fmt.Errorf("invalid sub path %q: %w", subPath, rootstorage.ErrInvalidPath)
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	relPath := filepath.Join(subPath, name)
	finalPath := filepath.Join(s.baseDir, relPath)
	stagedPath := filepath.Join(s.baseDir, stagingDir, name)

	dst, err := os.Create(stagedPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging file: %w", err)
	}

	done := make(chan struct{})
	var size int64
	var copyErr error

	go func() {
		size, copyErr = io.Copy(dst, r)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// горутина копирования завершится ошибкой записи в закрытый файл
		_ = dst.Close()
		_ = os.Remove(stagedPath)
		return "", 0, ctx.Err()
	}

	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(stagedPath)
		return "", 0, fmt.Errorf("failed to copy file: %w", copyErr)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		_ = os.Remove(stagedPath)
		return "", 0, fmt.Errorf("failed to create directories: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = os.Remove(stagedPath)
		return "", 0, err
	}

	if err := os.Rename(stagedPath, finalPath); err != nil {
		_ = os.Remove(stagedPath)
		return "", 0, fmt.Errorf("failed to commit staged file: %w", err)
	}

	return filepath.ToSlash(relPath), size, nil
}

// Delete удаляет файл из хранилища
func (s *LocalFileStorage) Delete(ctx context.Context, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.GetFullPath(filePath))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filePath, rootstorage.ErrFileNotFound)
	}

	return err
}

// URL публичный адрес файла
func (s *LocalFileStorage) URL(relativePath string) string {
	return s.baseURL + "/" + path.Clean(filepath.ToSlash(relativePath))
}

// GetFullPath возвращает полный путь к файлу на диске
func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(relativePath))
}

// ListOlderThan возвращает подтвержденные файлы, измененные раньше before
func (s *LocalFileStorage) ListOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == stagingDir {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(before) {
			rel, err := filepath.Rel(s.baseDir, p)
			if err != nil {
				return err
			}
			paths = append(paths, filepath.ToSlash(rel))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk storage: %w", err)
	}

	return paths, nil
}

// CleanStaging удаляет брошенные незавершенные записи
func (s *LocalFileStorage) CleanStaging(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, stagingDir))
	if err != nil {
		return 0, fmt.Errorf("failed to read staging dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, stagingDir, e.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
