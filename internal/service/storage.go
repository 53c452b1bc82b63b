package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"support_chat/internal/config"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"

	"github.com/google/uuid"
)

// StorageService кладет медиа на локальный диск. Входящие файлы внешней
// платформы скачиваются сюда до записи сообщения, чтобы file_ref всегда
// указывал на локально доступный ресурс.
type StorageService interface {
	SaveUpload(fileName string, src io.Reader) (storedName string, localURL string, err error)
	FetchRemote(ctx context.Context, remoteURL, suggestedName string) (storedName string, localURL string, err error)
}

type storageService struct {
	cfg    config.UploadConfig
	client *http.Client
	log    logger.Logger
}

func NewStorageService(cfg config.UploadConfig, log logger.Logger) (StorageService, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &storageService{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}, nil
}

func (s *storageService) SaveUpload(fileName string, src io.Reader) (string, string, error) {
	storedName := uniqueName(fileName)
	dst, err := os.Create(filepath.Join(s.cfg.Dir, storedName))
	if err != nil {
		s.log.Error("Failed to create upload file", "error", err, "name", storedName)
		return "", "", pkgerrors.ErrInternal
	}
	defer dst.Close()

	limit := s.cfg.MaxSizeMB * 1024 * 1024
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		s.log.Error("Failed to write upload", "error", err, "name", storedName)
		return "", "", pkgerrors.ErrInternal
	}
	if written > limit {
		os.Remove(filepath.Join(s.cfg.Dir, storedName))
		return "", "", pkgerrors.ErrBadRequest
	}

	return storedName, s.publicURL(storedName), nil
}

func (s *storageService) FetchRemote(ctx context.Context, remoteURL, suggestedName string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("Failed to fetch remote file", "error", err, "url", remoteURL)
		return "", "", fmt.Errorf("fetch remote file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch remote file: status %d", resp.StatusCode)
	}

	name := suggestedName
	if name == "" {
		name = path.Base(req.URL.Path)
	}

	return s.SaveUpload(name, resp.Body)
}

func (s *storageService) publicURL(storedName string) string {
	return strings.TrimSuffix(s.cfg.PublicBase, "/") + "/" + storedName
}

func uniqueName(fileName string) string {
	ext := filepath.Ext(fileName)
	if len(ext) > 16 {
		ext = ""
	}
	return uuid.New().String() + ext
}
