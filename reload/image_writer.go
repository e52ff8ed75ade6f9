package reload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Image Format Constants
// ---------------------------------------------------------------------------

// ImageMagic identifies a binary type image.
var ImageMagic = [4]byte{'H', 'S', 'T', 'I'}

// ImageFormatVersion is the current image layout.
// v1: CBOR payload with trailing xxh3 checksum
const ImageFormatVersion uint32 = 1

// ImageHeaderSize is magic(4) + version(4) + flags(4) + payloadLength(4).
const ImageHeaderSize = 16

// imageChecksumSize is the trailing xxh3-64 checksum of the payload.
const imageChecksumSize = 8

// Image flags
const (
	ImageFlagNone      uint32 = 0
	ImageFlagSynthetic uint32 = 1 << 0 // produced by a tool rather than a compiler
)

// cborEncMode is canonical so identical images encode to identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("reload: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeImage serializes a type image. The image is validated first.
func EncodeImage(img *TypeImage) ([]byte, error) {
	return EncodeImageWithFlags(img, ImageFlagNone)
}

// EncodeImageWithFlags serializes a type image with the given header flags.
func EncodeImageWithFlags(img *TypeImage, flags uint32) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	payload, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encode image %s: %w", img.Name, err)
	}

	var buf bytes.Buffer
	buf.Grow(ImageHeaderSize + len(payload) + imageChecksumSize)

	buf.Write(ImageMagic[:])
	word := make([]byte, 4)
	binary.LittleEndian.PutUint32(word, ImageFormatVersion)
	buf.Write(word)
	binary.LittleEndian.PutUint32(word, flags)
	buf.Write(word)
	binary.LittleEndian.PutUint32(word, uint32(len(payload)))
	buf.Write(word)

	buf.Write(payload)

	sum := make([]byte, imageChecksumSize)
	binary.LittleEndian.PutUint64(sum, xxh3.Hash(payload))
	buf.Write(sum)

	return buf.Bytes(), nil
}

// MustEncodeImage is like EncodeImage but panics on error.
// Useful for static fixtures.
func MustEncodeImage(img *TypeImage) []byte {
	data, err := EncodeImage(img)
	if err != nil {
		panic(err)
	}
	return data
}

// ImageDigest returns the content digest used to identify identical images.
func ImageDigest(data []byte) uint64 {
	return xxh3.Hash(data)
}
