package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

// URLPrefix is where stored files are served from.
const URLPrefix = "/uploads/"

const tempDir = "tmp"

var blockedTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-elf",
	"application/x-mach-binary",
	"application/x-executable",
}

var avatarTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

type UploadService struct {
	dir      string
	maxBytes int64
	store    *store.Store
	logger   *zap.Logger
}

// NewUploadService makes sure dir and its staging directory exist.
func NewUploadService(dir string, maxBytes int64, st *store.Store, logger *zap.Logger) (*UploadService, error) {
	if err := os.MkdirAll(filepath.Join(dir, tempDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadService{dir: dir, maxBytes: maxBytes, store: st, logger: logger.Named("uploads")}, nil
}

func (s *UploadService) Dir() string     { return s.dir }
func (s *UploadService) MaxBytes() int64 { return s.maxBytes }

type Upload struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// Save stores r under a generated name. Executables are refused.
func (s *UploadService) Save(ctx context.Context, r io.Reader, originalName string) (*Upload, error) {
	return s.save(ctx, r, originalName, func(mt *mimetype.MIME) error {
		if isOneOf(mt, blockedTypes) {
			return Validation("File type %s is not allowed", mt.String())
		}
		return nil
	})
}

// SaveAvatar stores an image and points the user's avatar at it. The previous
// avatar file is removed when it was one of ours.
func (s *UploadService) SaveAvatar(ctx context.Context, userID int64, r io.Reader, originalName string) (*store.User, *Upload, error) {
	prev, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, NotFound("User not found")
		}
		return nil, nil, Internal("uploads.avatar", err)
	}

	up, err := s.save(ctx, r, originalName, func(mt *mimetype.MIME) error {
		if !isOneOf(mt, avatarTypes) {
			return Validation("Avatar must be a JPEG, PNG, GIF or WebP image")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	u, err := s.store.UpdateUser(ctx, userID, store.UserPatch{AvatarURL: &up.URL})
	if err != nil {
		s.remove(up.Filename)
		return nil, nil, Internal("uploads.avatar", err)
	}
	if prev.AvatarURL != nil && strings.HasPrefix(*prev.AvatarURL, URLPrefix) {
		s.remove(strings.TrimPrefix(*prev.AvatarURL, URLPrefix))
	}
	return u, up, nil
}

func (s *UploadService) save(ctx context.Context, r io.Reader, originalName string, accept func(*mimetype.MIME) error) (*Upload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Join(s.dir, tempDir), "upload-*")
	if err != nil {
		return nil, Internal("uploads.save", err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, Internal("uploads.save", err)
	}
	if n > s.maxBytes {
		return nil, Validation("File too large")
	}
	if n == 0 {
		return nil, Validation("File is empty")
	}

	mt, err := mimetype.DetectFile(tmpName)
	if err != nil {
		return nil, Internal("uploads.detect", err)
	}
	if err := accept(mt); err != nil {
		return nil, err
	}

	name := uuid.NewString() + extensionFor(mt, originalName)
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return nil, Internal("uploads.save", err)
	}
	keep = true

	s.logger.Info("file stored",
		zap.String("filename", name),
		zap.String("mime", mt.String()),
		zap.Int64("size", n))
	return &Upload{
		URL:          URLPrefix + name,
		Filename:     name,
		OriginalName: filepath.Base(originalName),
		MimeType:     mt.String(),
		Size:         n,
	}, nil
}

// SweepTemp removes staged files older than maxAge, left behind by
// interrupted uploads. It returns how many were removed.
func (s *UploadService) SweepTemp(maxAge time.Duration) (int, error) {
	dir := filepath.Join(s.dir, tempDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			s.logger.Warn("failed to remove stale upload", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *UploadService) remove(name string) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove file", zap.String("filename", name), zap.Error(err))
	}
}

func isOneOf(mt *mimetype.MIME, types []string) bool {
	for _, t := range types {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// extensionFor prefers the sniffed extension and falls back to the client's.
func extensionFor(mt *mimetype.MIME, originalName string) string {
	if ext := mt.Extension(); ext != "" {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
