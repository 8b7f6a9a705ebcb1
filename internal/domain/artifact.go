package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Artifact-specific validation errors
var (
	// ErrArtifactIDEmpty is returned when an artifact ID is empty or nil.
	ErrArtifactIDEmpty = errors.New("artifact ID cannot be empty")

	// ErrArtifactJobIDEmpty is returned when an artifact's job ID is empty or nil.
	ErrArtifactJobIDEmpty = errors.New("artifact job ID cannot be empty")

	// ErrArtifactPathEmpty is returned when an artifact's local path is empty.
	ErrArtifactPathEmpty = errors.New("artifact local path cannot be empty")

	// ErrArtifactChecksumEmpty is returned when an artifact has no checksum.
	// A record only exists once the download is verified, so the checksum is
	// always required.
	ErrArtifactChecksumEmpty = errors.New("artifact checksum cannot be empty")

	// ErrArtifactSizeInvalid is returned when an artifact's byte size is not positive.
	ErrArtifactSizeInvalid = errors.New("artifact size must be positive")
)

// Artifact records a verified downloaded clip. It is created by the
// downloader after the integrity check and atomic rename, is immutable once
// written, and is referenced (never owned) by the Job record.
type Artifact struct {
	ID             uuid.UUID `json:"id"`
	JobID          uuid.UUID `json:"job_id"`
	SourceURL      string    `json:"source_url"`
	LocalPath      string    `json:"local_path"`
	SizeBytes      int64     `json:"size_bytes"`
	ChecksumSHA256 string    `json:"checksum_sha256"`
	DurationSec    float64   `json:"duration_seconds"`
	DownloadedAt   time.Time `json:"downloaded_at"`
}

// NewArtifact creates an Artifact record for a verified download.
// Returns an error if validation fails.
func NewArtifact(jobID uuid.UUID, sourceURL, localPath string, sizeBytes int64, checksum string, durationSec float64) (*Artifact, error) {
	artifact := &Artifact{
		ID:             uuid.New(),
		JobID:          jobID,
		SourceURL:      sourceURL,
		LocalPath:      localPath,
		SizeBytes:      sizeBytes,
		ChecksumSHA256: checksum,
		DurationSec:    durationSec,
		DownloadedAt:   time.Now().UTC(),
	}

	if err := artifact.Validate(); err != nil {
		return nil, err
	}

	return artifact, nil
}

// Validate checks if the Artifact has valid data.
func (a *Artifact) Validate() error {
	if a.ID == uuid.Nil {
		return ErrArtifactIDEmpty
	}

	if a.JobID == uuid.Nil {
		return ErrArtifactJobIDEmpty
	}

	if a.LocalPath == "" {
		return ErrArtifactPathEmpty
	}

	if a.ChecksumSHA256 == "" {
		return ErrArtifactChecksumEmpty
	}

	if a.SizeBytes <= 0 {
		return ErrArtifactSizeInvalid
	}

	return nil
}
