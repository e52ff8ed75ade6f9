package reload

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
)

// ImageHeader contains the parsed header of a binary type image.
type ImageHeader struct {
	Magic         string // Should be "HSTI"
	Version       uint32
	Flags         uint32
	PayloadLength uint32
	Checksum      uint64
}

// cborDecMode rejects duplicate map keys so a tampered payload cannot
// smuggle two values for one field.
var cborDecMode cbor.DecMode

func init() {
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("reload: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// ReadImageHeader parses and checks the header and checksum of an image.
func ReadImageHeader(data []byte) (*ImageHeader, error) {
	if len(data) < ImageHeaderSize {
		return nil, ErrCorruptHeader
	}

	magic := string(data[0:4])
	if magic != string(ImageMagic[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, magic)
	}

	h := &ImageHeader{
		Magic:         magic,
		Version:       binary.LittleEndian.Uint32(data[4:]),
		Flags:         binary.LittleEndian.Uint32(data[8:]),
		PayloadLength: binary.LittleEndian.Uint32(data[12:]),
	}
	if h.Version != ImageFormatVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, ImageFormatVersion, h.Version)
	}

	end := ImageHeaderSize + int(h.PayloadLength)
	if end < ImageHeaderSize || end+imageChecksumSize > len(data) {
		return nil, ErrUnexpectedEOF
	}
	if end+imageChecksumSize != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptData, len(data)-end-imageChecksumSize)
	}

	h.Checksum = binary.LittleEndian.Uint64(data[end:])
	if got := xxh3.Hash(data[ImageHeaderSize:end]); got != h.Checksum {
		return nil, fmt.Errorf("%w: header %016x, payload %016x", ErrChecksumMismatch, h.Checksum, got)
	}
	return h, nil
}

// DecodeImage parses a binary type image. Every failure is a *ParseError.
func DecodeImage(data []byte) (*TypeImage, error) {
	h, err := ReadImageHeader(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	payload := data[ImageHeaderSize : ImageHeaderSize+int(h.PayloadLength)]
	var img TypeImage
	if err := cborDecMode.Unmarshal(payload, &img); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%w: %v", ErrCorruptData, err)}
	}
	if err := img.Validate(); err != nil {
		return nil, &ParseError{Type: img.Name, Err: err}
	}
	return &img, nil
}
