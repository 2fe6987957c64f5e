// Package snapshot persists learned engine state between runs.
//
// File layout:
//
//	magic    4 bytes  "ZMS1"
//	digest  32 bytes  BLAKE3 keyed hash of the payload
//	payload           zstd(CBOR(State))
//
// State is encoded with Core Deterministic CBOR so the same state always
// yields the same bytes. Writes go to a temporary file that is renamed
// into place.
package snapshot

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/joshuapare/zmin/adapt/analyzer"
	"github.com/joshuapare/zmin/adapt/patterncache"
	"github.com/joshuapare/zmin/adapt/speculative"
	"github.com/joshuapare/zmin/adapt/tier"
)

// FormatVersion is bumped on incompatible State changes.
const FormatVersion = 1

const (
	magic      = "ZMS1"
	digestSize = 32
	headerSize = len(magic) + digestSize
	// maxDecoded bounds decompression of untrusted files.
	maxDecoded = 256 << 20
)

var (
	// ErrCorrupt is returned for files that fail the magic or digest check.
	ErrCorrupt = errors.New("snapshot: corrupt or foreign file")
	// ErrVersion is returned for snapshots written by another format version.
	ErrVersion = errors.New("snapshot: unsupported format version")
)

// State is everything the engine learns.
type State struct {
	Version   int       `cbor:"1,keyasint"`
	ID        uuid.UUID `cbor:"2,keyasint"`
	Engine    uuid.UUID `cbor:"3,keyasint"`
	CreatedAt time.Time `cbor:"4,keyasint"`
	Mode      string    `cbor:"5,keyasint"`

	Weights [analyzer.NumFeatures]float64 `cbor:"6,keyasint"`
	// Scores is keyed by strategy id.
	Scores     map[uint8]float64             `cbor:"7,keyasint"`
	Cache      map[uint64]patterncache.Entry `cbor:"8,keyasint"`
	Thresholds tier.Thresholds               `cbor:"9,keyasint"`
	Tuning     speculative.Tuning            `cbor:"10,keyasint"`
}

// digestKey domain-separates snapshot digests.
var digestKey = [32]byte{
	'z', 'm', 'i', 'n', '.', 's', 'n', 'a', 'p', 's', 'h', 'o', 't',
}

var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
	if zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	if zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded)); err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// New returns an empty State stamped with a fresh ID and the current time.
func New(engine uuid.UUID) State {
	return State{
		Version:   FormatVersion,
		ID:        uuid.New(),
		Engine:    engine,
		CreatedAt: time.Now().UTC(),
	}
}

func digest(payload []byte) [digestSize]byte {
	h, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write(payload)
	var sum [digestSize]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Encode serializes s.
func Encode(s State) ([]byte, error) {
	raw, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	payload := zstdEncoder.EncodeAll(raw, nil)
	sum := digest(payload)

	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, magic...)
	out = append(out, sum[:]...)
	return append(out, payload...), nil
}

// Decode parses data written by Encode.
func Decode(data []byte) (State, error) {
	if len(data) < headerSize || !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return State{}, ErrCorrupt
	}
	payload := data[headerSize:]
	sum := digest(payload)
	if subtle.ConstantTimeCompare(sum[:], data[len(magic):headerSize]) != 1 {
		return State{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return State{}, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
	}
	var s State
	if err := decMode.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("%w: cbor: %v", ErrCorrupt, err)
	}
	if s.Version != FormatVersion {
		return State{}, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return s, nil
}

// Save writes s to path atomically.
func Save(path string, s State) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".zmin-snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// Load reads and verifies the snapshot at path.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("snapshot: %w", err)
	}
	s, err := Decode(data)
	if err != nil {
		return State{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
