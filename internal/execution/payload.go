package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/provider"
)

// ErrPayloadNotFound is returned when a job's prompt reference resolves to
// no stored payload.
var ErrPayloadNotFound = errors.New("prompt payload not found")

// PayloadSource resolves a job's prompt reference into the full generation
// request. Payloads are authored upstream; the executor only consumes them.
type PayloadSource interface {
	Load(ctx context.Context, promptRef uuid.UUID) (provider.Request, error)
}

// FilePayloadSource loads payloads from JSON files laid out as
// <dir>/<prompt-ref>.json, the format the upstream authoring step writes.
type FilePayloadSource struct {
	dir string
}

// NewFilePayloadSource creates a source reading payloads from dir.
func NewFilePayloadSource(dir string) *FilePayloadSource {
	return &FilePayloadSource{dir: dir}
}

// Load reads and decodes one payload file.
func (s *FilePayloadSource) Load(_ context.Context, promptRef uuid.UUID) (provider.Request, error) {
	path := filepath.Join(s.dir, promptRef.String()+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return provider.Request{}, fmt.Errorf("%w: %s", ErrPayloadNotFound, promptRef)
		}
		return provider.Request{}, fmt.Errorf("reading payload %s: %w", promptRef, err)
	}

	var req provider.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return provider.Request{}, fmt.Errorf("decoding payload %s: %w", promptRef, err)
	}

	if req.Prompt == "" {
		return provider.Request{}, fmt.Errorf("payload %s has an empty prompt", promptRef)
	}
	if req.DurationSeconds <= 0 {
		return provider.Request{}, fmt.Errorf("payload %s has a non-positive duration", promptRef)
	}

	return req, nil
}
