package persist

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MMR-MINGriyue/focusflow/internal/crypto"
)

// Snapshot is one versioned, checksummed serialization of the durable
// state. The checksum always covers the uncompressed, unencrypted
// payload bytes.
type Snapshot struct {
	Payload       json.RawMessage `json:"payload"`
	SchemaVersion string          `json:"schema_version"`
	SavedAt       time.Time       `json:"saved_at"`
	Checksum      string          `json:"checksum"`
}

// Valid reports whether the snapshot's checksum matches its payload.
func (s *Snapshot) Valid() bool {
	return s.Checksum == checksum(s.Payload)
}

// BackupRecord is a retained snapshot in the backup ring.
type BackupRecord struct {
	ID          string   `json:"id"`
	Snapshot    Snapshot `json:"snapshot"`
	Description string   `json:"description"`
}

// Payload encodings stored in the on-disk envelope. The tag is explicit
// rather than sniffed so a failed compression attempt can fall back to
// raw without ambiguity.
const (
	EncodingRaw  = "raw"
	EncodingGzip = "gzip"
)

// envelope is the stored form of a snapshot. Body holds the payload
// bytes after encoding (and encryption when enabled); the JSON codec
// base64s it.
type envelope struct {
	SchemaVersion string    `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum"`
	Encoding      string    `json:"encoding"`
	Encrypted     bool      `json:"encrypted,omitempty"`
	Body          []byte    `json:"body"`
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// encodeEnvelope packs a snapshot for storage. Compression failure is
// not a save failure: the payload is stored raw and tagged as such.
func encodeEnvelope(snap Snapshot, compress bool, key []byte) ([]byte, error) {
	body := []byte(snap.Payload)
	encoding := EncodingRaw

	if compress {
		if gz, err := gzipBytes(body); err != nil {
			slog.Warn("snapshot compression failed, storing raw", "err", err)
		} else {
			body = gz
			encoding = EncodingGzip
		}
	}

	encrypted := false
	if len(key) > 0 {
		sealed, err := crypto.Encrypt(key, body)
		if err != nil {
			return nil, fmt.Errorf("encrypt snapshot: %w", err)
		}
		body = sealed
		encrypted = true
	}

	data, err := json.Marshal(envelope{
		SchemaVersion: snap.SchemaVersion,
		SavedAt:       snap.SavedAt,
		Checksum:      snap.Checksum,
		Encoding:      encoding,
		Encrypted:     encrypted,
		Body:          body,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal envelope: %v", ErrSerialization, err)
	}
	return data, nil
}

// decodeEnvelope unpacks stored bytes back into a snapshot. It does not
// validate the checksum; callers decide how a mismatch is handled.
func decodeEnvelope(data []byte, key []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: unmarshal envelope: %v", ErrSerialization, err)
	}

	body := env.Body
	if env.Encrypted {
		if len(key) == 0 {
			return Snapshot{}, fmt.Errorf("%w: snapshot is encrypted and no key configured", ErrSerialization)
		}
		plain, err := crypto.Decrypt(key, body)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		body = plain
	}

	switch env.Encoding {
	case EncodingRaw:
	case EncodingGzip:
		raw, err := gunzipBytes(body)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: gunzip payload: %v", ErrSerialization, err)
		}
		body = raw
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown encoding %q", ErrSerialization, env.Encoding)
	}

	if !json.Valid(body) {
		return Snapshot{}, fmt.Errorf("%w: payload is not valid JSON", ErrSerialization)
	}

	return Snapshot{
		Payload:       body,
		SchemaVersion: env.SchemaVersion,
		SavedAt:       env.SavedAt,
		Checksum:      env.Checksum,
	}, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
