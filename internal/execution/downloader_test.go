package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClipKey() ClipKey {
	return ClipKey{UnitID: uuid.New(), SceneID: "scene-01", ClipIndex: 2}
}

func TestDownloaderFetchesAndVerifies(t *testing.T) {
	t.Parallel()

	clip := buildMP4(8.0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(clip)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(server.Client(), dir, 999, testLogger())

	jobID := uuid.New()
	key := testClipKey()
	artifact, err := d.Fetch(context.Background(), jobID, key, server.URL, 8.0)

	require.NoError(t, err)
	assert.Equal(t, jobID, artifact.JobID)
	assert.Equal(t, int64(len(clip)), artifact.SizeBytes)
	assert.InDelta(t, 8.0, artifact.DurationSec, 0.01)

	wantSum := sha256.Sum256(clip)
	assert.Equal(t, hex.EncodeToString(wantSum[:]), artifact.ChecksumSHA256)

	wantPath := filepath.Join(dir, "clips", key.UnitID.String(), key.SceneID, "clip_002.mp4")
	assert.Equal(t, wantPath, artifact.LocalPath)

	data, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	assert.Equal(t, clip, data)

	// No temp file left behind.
	_, err = os.Stat(wantPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloaderRejectsDurationMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buildMP4(3.0))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(server.Client(), dir, 999, testLogger())

	_, err := d.Fetch(context.Background(), uuid.New(), testClipKey(), server.URL, 8.0)

	require.Error(t, err)
	assert.Equal(t, provider.KindIntegrityFailure, provider.KindOf(err))

	// The rejected download never reaches a final path.
	entries, globErr := filepath.Glob(filepath.Join(dir, "clips", "*", "*", "*"))
	require.NoError(t, globErr)
	assert.Empty(t, entries)
}

func TestDownloaderAcceptsDurationWithinTolerance(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buildMP4(7.2))
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), t.TempDir(), 999, testLogger())

	artifact, err := d.Fetch(context.Background(), uuid.New(), testClipKey(), server.URL, 8.0)

	require.NoError(t, err)
	assert.InDelta(t, 7.2, artifact.DurationSec, 0.01)
}

func TestDownloaderRejectsCorruptPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>error page pretending to be a video</html>"))
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), t.TempDir(), 999, testLogger())

	_, err := d.Fetch(context.Background(), uuid.New(), testClipKey(), server.URL, 8.0)

	require.Error(t, err)
	assert.Equal(t, provider.KindIntegrityFailure, provider.KindOf(err))
}

func TestDownloaderClassifiesHTTPStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), t.TempDir(), 999, testLogger())

	_, err := d.Fetch(context.Background(), uuid.New(), testClipKey(), server.URL, 8.0)

	require.Error(t, err)
	assert.Equal(t, provider.KindProviderUnavailable, provider.KindOf(err))
}

func TestDownloaderRejectsClipIndexOutOfRange(t *testing.T) {
	t.Parallel()

	d := NewDownloader(nil, t.TempDir(), 10, testLogger())

	key := testClipKey()
	key.ClipIndex = 10
	_, err := d.Fetch(context.Background(), uuid.New(), key, "http://unused.example.com", 8.0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside configured range")
}

func TestDownloaderSkipsDurationCheckWhenUnknown(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buildMP4(42.0))
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), t.TempDir(), 999, testLogger())

	artifact, err := d.Fetch(context.Background(), uuid.New(), testClipKey(), server.URL, 0)

	require.NoError(t, err)
	assert.InDelta(t, 42.0, artifact.DurationSec, 0.01)
}
