// Package artifact stores fitted state as opaque, compressed files. Every
// artifact carries the id of the training run that produced it so that a
// scaler and a model from different runs are never used together.
package artifact

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Kind identifies what an artifact holds.
type Kind string

// Artifact kinds.
const (
	KindScaler Kind = "scaler"
	KindForest Kind = "iforest"
)

var (
	// ErrKindMismatch is returned when a file holds a different kind.
	ErrKindMismatch = errors.New("artifact kind mismatch")
	// ErrRunMismatch is returned for artifacts from different training runs.
	ErrRunMismatch = errors.New("artifacts come from different training runs")
)

// Header describes an artifact payload.
type Header struct {
	Kind    Kind
	RunID   string
	Schema  string
	Created time.Time
}

// NewRunID returns a fresh training run id.
func NewRunID() string {
	return uuid.NewString()
}

type envelope struct {
	Header  Header
	Payload []byte
}

// Write encodes h and payload to w.
func Write(w io.Writer, h Header, payload []byte) error {
	if h.RunID == "" {
		return errors.New("artifact header has no run id")
	}
	if _, err := uuid.Parse(h.RunID); err != nil {
		return fmt.Errorf("artifact run id: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(enc).Encode(envelope{Header: h, Payload: payload}); err != nil {
		enc.Close()
		return fmt.Errorf("encode %s artifact: %w", h.Kind, err)
	}
	return enc.Close()
}

// Read decodes an artifact from r and checks that it holds kind.
func Read(r io.Reader, kind Kind) (Header, []byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()

	var env envelope
	if err := gob.NewDecoder(dec).Decode(&env); err != nil {
		return Header{}, nil, fmt.Errorf("decode %s artifact: %w", kind, err)
	}
	if env.Header.Kind != kind {
		return env.Header, nil, fmt.Errorf("%w: want %s, found %s", ErrKindMismatch, kind, env.Header.Kind)
	}
	return env.Header, env.Payload, nil
}

// WriteFile writes an artifact atomically to path.
func WriteFile(path string, h Header, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, h, payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile reads an artifact of kind from path.
func ReadFile(path string, kind Kind) (Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()

	h, payload, err := Read(f, kind)
	if err != nil {
		return h, nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, payload, nil
}

// CheckPair verifies that two artifacts come from the same training run.
func CheckPair(a, b Header) error {
	if a.RunID != b.RunID {
		return fmt.Errorf("%w: %s %s, %s %s", ErrRunMismatch, a.Kind, a.RunID, b.Kind, b.RunID)
	}
	if a.Schema != b.Schema {
		return fmt.Errorf("%w: %s schema %q, %s schema %q", ErrRunMismatch, a.Kind, a.Schema, b.Kind, b.Schema)
	}
	return nil
}
