package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	"memo/internal/config"
	"memo/internal/logger"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	ErrNotFound = errors.New("объект не найден")
	ErrBadPath  = errors.New("недопустимый путь объекта")
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BlobStore хранит содержимое вложений в afero.Fs.
type BlobStore struct {
	fs afero.Fs
}

func New(cfg config.StorageConfig) (*BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewWithFs(afero.NewMemMapFs()), nil
	case "os":
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("создание каталога хранилища: %w", err)
		}
		logger.Info("Storage: Файловое хранилище", zap.String("root", cfg.Root))
		return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.Root)), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища %q", cfg.Type)
	}
}

func NewWithFs(fs afero.Fs) *BlobStore {
	return &BlobStore{fs: fs}
}

// AttachmentPath строит путь users/<uid>/tasks/<tid>/<uuid>-<имя>.
func AttachmentPath(userID, taskID, name string) string {
	return path.Join("users", userID, "tasks", taskID, uuid.NewString()+"-"+SanitizeName(name))
}

func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// Put записывает не более limit байт; при превышении объект удаляется.
func (s *BlobStore) Put(ctx context.Context, objectPath string, r io.Reader, limit int64) (int64, error) {
	p, err := clean(objectPath)
	if err != nil {
		return 0, err
	}

	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("создание каталога: %w", err)
	}

	f, err := s.fs.Create(p)
	if err != nil {
		return 0, fmt.Errorf("создание объекта: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, copyErr := io.Copy(f, &ctxReader{ctx: ctx, r: src})
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		s.remove(p)
		return 0, fmt.Errorf("запись объекта: %w", copyErr)
	case closeErr != nil:
		s.remove(p)
		return 0, fmt.Errorf("закрытие объекта: %w", closeErr)
	case limit > 0 && n > limit:
		s.remove(p)
		return 0, ErrTooLarge
	}

	logger.Debug("Storage: Объект сохранён", zap.String("path", p), zap.Int64("size", n))
	return n, nil
}

func (s *BlobStore) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	p, err := clean(objectPath)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("открытие объекта: %w", err)
	}
	return f, nil
}

func (s *BlobStore) Delete(ctx context.Context, objectPath string) error {
	p, err := clean(objectPath)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление объекта: %w", err)
	}
	return nil
}

func (s *BlobStore) remove(p string) {
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Storage: Не удалось удалить неполный объект", zap.String("path", p), zap.Error(err))
	}
}

func clean(objectPath string) (string, error) {
	p := path.Clean("/" + objectPath)
	if p == "/" || strings.Contains(objectPath, "..") {
		return "", ErrBadPath
	}
	return p, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
