// Package calib persists the engine calibration tables as a fixed-size
// versioned blob: a version word, the raw table payload and a CRC32 over
// the payload region only. Version and checksum failures are reported
// distinctly so the caller can tell a stale format from corruption.
package calib

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/logger"
)

const (
	// BlobVersion identifies the current payload layout
	BlobVersion uint32 = 1

	tableAxisSize  = 16
	defaultDirPerm = 0o755
	blobFilePerm   = 0o600
)

// Table16 is one 16x16 lookup table with its axis bins. Values are
// fixed-point x10 (VE, timing) or x1000 (lambda).
type Table16 struct {
	RPMBins  [tableAxisSize]uint16
	LoadBins [tableAxisSize]uint16
	Values   [tableAxisSize][tableAxisSize]uint16
}

// Lookup returns the table value at the highest bin pair not above the
// given rpm and load. Inputs below the first bin clamp to it.
func (t *Table16) Lookup(rpm, load uint16) uint16 {
	return t.Values[binIndex(&t.RPMBins, rpm)][binIndex(&t.LoadBins, load)]
}

func binIndex(bins *[tableAxisSize]uint16, v uint16) int {
	idx := 0
	for i, bin := range bins {
		if v < bin {
			break
		}
		idx = i
	}
	return idx
}

// Maps is the calibration payload: the three tables the control loop
// interpolates from.
type Maps struct {
	VE       Table16
	Ignition Table16
	Lambda   Table16
}

// Encode serializes the blob: version u32, payload, crc32 u32, all
// little-endian. The checksum covers only the payload bytes.
func Encode(maps *Maps) ([]byte, error) {
	errFactory := errors.New()

	if maps == nil {
		return nil, errFactory.New(errors.ErrInvalidArgument)
	}

	payload := &bytes.Buffer{}
	if err := binary.Write(payload, binary.LittleEndian, maps); err != nil {
		return nil, errFactory.Wrap(ErrEncodeFailed, err)
	}

	blob := &bytes.Buffer{}
	if err := binary.Write(blob, binary.LittleEndian, BlobVersion); err != nil {
		return nil, errFactory.Wrap(ErrEncodeFailed, err)
	}
	blob.Write(payload.Bytes())
	if err := binary.Write(blob, binary.LittleEndian, crc32.ChecksumIEEE(payload.Bytes())); err != nil {
		return nil, errFactory.Wrap(ErrEncodeFailed, err)
	}

	return blob.Bytes(), nil
}

// Decode parses and verifies a blob produced by Encode
func Decode(data []byte) (*Maps, error) {
	errFactory := errors.New()

	payloadSize := binary.Size(&Maps{})
	expected := 4 + payloadSize + 4
	if len(data) != expected {
		return nil, errFactory.WithData(ErrTruncatedBlob, len(data))
	}

	version := binary.LittleEndian.Uint32(data[:4])
	if version != BlobVersion {
		return nil, errFactory.WithData(ErrVersionMismatch, version)
	}

	payload := data[4 : 4+payloadSize]
	stored := binary.LittleEndian.Uint32(data[4+payloadSize:])
	if crc32.ChecksumIEEE(payload) != stored {
		return nil, errFactory.New(ErrChecksumMismatch)
	}

	maps := &Maps{}
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, maps); err != nil {
		return nil, errFactory.Wrap(ErrDecodeFailed, err)
	}

	return maps, nil
}

// Store reads and writes the calibration blob at a fixed path
type Store struct {
	path string
}

// NewStore returns a store for the given blob path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and verifies the calibration. Callers distinguish version
// and checksum failures via errors.HasCode.
func (s *Store) Load() (*Maps, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	maps, err := Decode(data)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("path", s.path).
		Uint32("version", BlobVersion).
		Msg("Calibration loaded")

	return maps, nil
}

// Save serializes and persists the calibration. The write goes through a
// temporary file and rename so a crash never leaves a torn blob.
func (s *Store) Save(maps *Maps) error {
	errFactory := errors.New()

	data, err := Encode(maps)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, blobFilePerm); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}
