package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("report pack bytes")
	hash, err := s.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, ContentHash(data), hash)
	assert.True(t, strings.HasPrefix(hash, "sha256:"))

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := s.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := s.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	require.NoError(t, s.Delete(ctx, hash))
	require.NoError(t, s.Delete(ctx, hash), "deleting twice is fine")
	ok, err = s.Exists(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, hash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = s.Store(context.Background(), []byte("x"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".blob", filepath.Ext(entries[0].Name()))
}

func TestFileStore_InvalidHash(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, h := range []string{"", "md5:abc", "sha256:zz", "sha256:" + strings.Repeat("a", 10), "sha256:../../etc/passwd"} {
		_, err := s.Get(ctx, h)
		assert.ErrorIs(t, err, ErrInvalidHash, h)
		_, err = s.Exists(ctx, h)
		assert.ErrorIs(t, err, ErrInvalidHash, h)
		assert.ErrorIs(t, s.Delete(ctx, h), ErrInvalidHash, h)
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "packs")

	s, err := NewStore(ctx, Config{Dir: dir})
	require.NoError(t, err)
	fs, ok := s.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, dir, fs.baseDir)

	_, err = NewStore(ctx, Config{Type: StoreTypeS3})
	assert.ErrorContains(t, err, "ARTIFACT_S3_BUCKET")

	_, err = NewStore(ctx, Config{Type: StoreTypeGCS})
	assert.ErrorContains(t, err, "ARTIFACT_GCS_BUCKET")

	_, err = NewStore(ctx, Config{Type: "tape"})
	assert.ErrorContains(t, err, "unsupported artifact storage type")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "s3")
	t.Setenv("DATA_DIR", "/var/lib/evidentia")
	t.Setenv("ARTIFACT_S3_BUCKET", "packs")
	t.Setenv("ARTIFACT_S3_REGION", "")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("ARTIFACT_S3_PREFIX", "reports/")

	cfg := ConfigFromEnv()
	assert.Equal(t, StoreTypeS3, cfg.Type)
	assert.Equal(t, filepath.Join("/var/lib/evidentia", "artifacts"), cfg.Dir)
	assert.Equal(t, S3StoreConfig{Bucket: "packs", Region: "eu-west-1", Endpoint: "http://minio:9000", Prefix: "reports/"}, cfg.S3)
}

func TestNewStoreFromEnv_Default(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("ARTIFACT_STORAGE_TYPE", "")
	t.Setenv("DATA_DIR", tmp)

	s, err := NewStoreFromEnv(context.Background())
	require.NoError(t, err)
	fs, ok := s.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(tmp, "artifacts"), fs.baseDir)
}
