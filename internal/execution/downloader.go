package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/provider"
)

// durationTolerance is the accepted deviation between a clip's declared
// duration and what the requester asked for.
const durationTolerance = 1.0

// ClipKey identifies where a downloaded clip belongs in the output tree.
type ClipKey struct {
	UnitID    uuid.UUID
	SceneID   string
	ClipIndex int
}

// Downloader fetches finished clips to local disk with integrity
// verification. Files are streamed to a temporary path, probed and hashed,
// and only then renamed into place, so a crash mid-download never leaves a
// half-written file under the final name.
type Downloader struct {
	client    *http.Client
	outputDir string
	maxClips  int
	logger    *slog.Logger
}

// NewDownloader creates a downloader writing under outputDir. maxClips
// bounds the clip index so generated filenames keep a fixed width.
func NewDownloader(client *http.Client, outputDir string, maxClips int, log *slog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Downloader{
		client:    client,
		outputDir: outputDir,
		maxClips:  maxClips,
		logger:    log,
	}
}

// Fetch downloads the clip at url for the given job, verifies it, and
// moves it into the unit's clip directory. expectedDuration of zero skips
// the duration comparison but the file must still parse as an MP4.
// Integrity failures are classified terminal; transport failures are
// classified transient so the caller's retry policy can re-attempt.
func (d *Downloader) Fetch(ctx context.Context, jobID uuid.UUID, key ClipKey, url string, expectedDuration float64) (*domain.Artifact, error) {
	if key.ClipIndex < 0 || key.ClipIndex >= d.maxClips {
		return nil, fmt.Errorf("clip index %d outside configured range [0, %d)", key.ClipIndex, d.maxClips)
	}

	dir := filepath.Join(d.outputDir, "clips", key.UnitID.String(), key.SceneID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clip directory: %w", err)
	}

	finalPath := filepath.Join(dir, fmt.Sprintf("clip_%03d.mp4", key.ClipIndex))
	tmpPath := finalPath + ".tmp"

	size, checksum, err := d.fetchToTemp(ctx, url, tmpPath)
	if err != nil {
		return nil, err
	}

	duration, err := d.verify(tmpPath, expectedDuration)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("moving clip into place: %w", err)
	}

	d.logger.Info("clip downloaded and verified",
		"job_id", jobID,
		"path", finalPath,
		"size_bytes", size,
		"duration_seconds", duration)

	return domain.NewArtifact(jobID, url, finalPath, size, checksum, duration)
}

// fetchToTemp streams the response body to tmpPath, hashing as it copies.
func (d *Downloader) fetchToTemp(ctx context.Context, url, tmpPath string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("building download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", provider.NewError(provider.KindTransientNetwork, "download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, "", provider.Errorf(provider.KindFromHTTPStatus(resp.StatusCode), "download",
			"unexpected status %d fetching result", resp.StatusCode)
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, "", fmt.Errorf("creating temp file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(out, io.TeeReader(resp.Body, hasher))
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, "", provider.NewError(provider.KindTransientNetwork, "download",
			fmt.Errorf("streaming response body: %w", err))
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, "", fmt.Errorf("flushing temp file: %w", closeErr)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// verify probes the downloaded file and checks its declared duration
// against what was requested.
func (d *Downloader) verify(path string, expectedDuration float64) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening downloaded file: %w", err)
	}
	defer func() { _ = f.Close() }()

	duration, err := probeMP4Duration(f)
	if err != nil {
		return 0, provider.NewError(provider.KindIntegrityFailure, "download",
			fmt.Errorf("probing downloaded file: %w", err))
	}

	if expectedDuration > 0 {
		diff := duration - expectedDuration
		if diff < 0 {
			diff = -diff
		}
		if diff > durationTolerance {
			return 0, provider.Errorf(provider.KindIntegrityFailure, "download",
				"clip duration %.2fs deviates from expected %.2fs by more than %.0fs",
				duration, expectedDuration, durationTolerance)
		}
	}

	return duration, nil
}
