package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store/storetest"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newUploads(t *testing.T, f *fixture, max int64) (*UploadService, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewUploadService(dir, max, f.store, zap.NewNop())
	require.NoError(t, err)
	return svc, dir
}

func TestUploadSave(t *testing.T) {
	f := newFixture(t)
	svc, dir := newUploads(t, f, 1024)

	up, err := svc.Save(testContext(t), strings.NewReader("just some notes\n"), "notes.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.URL, URLPrefix))
	assert.True(t, strings.HasSuffix(up.Filename, ".txt"))
	assert.Equal(t, "notes.txt", up.OriginalName)
	assert.True(t, strings.HasPrefix(up.MimeType, "text/plain"))
	assert.Equal(t, int64(16), up.Size)

	data, err := os.ReadFile(filepath.Join(dir, up.Filename))
	require.NoError(t, err)
	assert.Equal(t, "just some notes\n", string(data))

	staged, err := os.ReadDir(filepath.Join(dir, tempDir))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestUploadRejects(t *testing.T) {
	f := newFixture(t)
	svc, dir := newUploads(t, f, 16)

	_, err := svc.Save(testContext(t), bytes.NewReader(bytes.Repeat([]byte("a"), 17)), "big.txt")
	assertKind(t, KindValidation, err)
	assert.Equal(t, "File too large", PublicMessage(err))

	_, err = svc.Save(testContext(t), bytes.NewReader(nil), "empty.txt")
	assertKind(t, KindValidation, err)

	svc, _ = newUploads(t, f, 1024)
	elf := append([]byte("\x7fELF\x02\x01\x01"), make([]byte, 57)...)
	_, err = svc.Save(testContext(t), bytes.NewReader(elf), "tool")
	assertKind(t, KindValidation, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the staging directory remains")
}

func TestSaveAvatar(t *testing.T) {
	f := newFixture(t)
	svc, dir := newUploads(t, f, 1024)
	u := storetest.User(t, f.store, "alice")

	_, _, err := svc.SaveAvatar(testContext(t), u.ID, strings.NewReader("plain text"), "me.txt")
	assertKind(t, KindValidation, err)

	user, first, err := svc.SaveAvatar(testContext(t), u.ID, bytes.NewReader(pngHeader), "me.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", first.MimeType)
	require.NotNil(t, user.AvatarURL)
	assert.Equal(t, first.URL, *user.AvatarURL)

	_, second, err := svc.SaveAvatar(testContext(t), u.ID, bytes.NewReader(pngHeader), "me2.png")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, first.Filename))
	assert.FileExists(t, filepath.Join(dir, second.Filename))

	_, _, err = svc.SaveAvatar(testContext(t), 999, bytes.NewReader(pngHeader), "x.png")
	assertKind(t, KindNotFound, err)
}

func TestSweepTemp(t *testing.T) {
	f := newFixture(t)
	svc, dir := newUploads(t, f, 1024)

	stale := filepath.Join(dir, tempDir, "upload-stale")
	fresh := filepath.Join(dir, tempDir, "upload-fresh")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	n, err := svc.SweepTemp(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
