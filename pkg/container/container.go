package container

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/symtab"
)

const (
	magicISAX        = "ISAX"
	legacyMagicByte3 = 0x01 // legacy magic is "ISA" + this byte
	v2HeaderSize     = 32
	v1HeaderSize     = 24
)

// Image is the decoded (or to-be-encoded) contents of an ISAX container:
// the entry point, the code and data section placements, and — for the v2
// format — the symbol table that lets a disassembler recover label names.
type Image struct {
	EntryPoint int
	CodeStart  int
	Code       []byte
	DataStart  int
	Data       []byte
	// Symbols is the set of label/constant definitions to round-trip
	// through the container's v2 symbol table. Only defined, non-constant
	// symbols are actually serialized, matching spec's "one entry per
	// defined non-constant symbol".
	Symbols []symtab.Symbol
	// ISAName is populated only when reading the legacy "ISA\x01"
	// variant, which embeds it; the caller must match it against an
	// external ISA identifier, since nothing else names the ISA for that
	// format.
	ISAName string
}

// Write serializes img as a v2 container: writers always emit v2, per
// spec — readers accept v1 and the legacy format for backward
// compatibility, but there is no reason to ever write either.
func Write(img Image) ([]byte, error) {
	symBytes, err := encodeSymbols(img.Symbols)
	if err != nil {
		return nil, err
	}

	out := make([]byte, v2HeaderSize, v2HeaderSize+len(img.Code)+len(img.Data)+len(symBytes))
	copy(out[0:4], magicISAX)
	binary.LittleEndian.PutUint32(out[4:8], 2)
	binary.LittleEndian.PutUint32(out[8:12], uint32(img.EntryPoint))
	binary.LittleEndian.PutUint32(out[12:16], uint32(img.CodeStart))
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(img.Code)))
	binary.LittleEndian.PutUint32(out[20:24], uint32(img.DataStart))
	binary.LittleEndian.PutUint32(out[24:28], uint32(len(img.Data)))
	binary.LittleEndian.PutUint32(out[28:32], uint32(len(symBytes)))
	out = append(out, img.Code...)
	out = append(out, img.Data...)
	out = append(out, symBytes...)
	return out, nil
}

// WriteRaw emits a bare payload with no header at all: code immediately
// followed by data. The caller is responsible for remembering code/data
// boundaries externally, since nothing in the output says where they are.
func WriteRaw(img Image) []byte {
	out := make([]byte, 0, len(img.Code)+len(img.Data))
	out = append(out, img.Code...)
	out = append(out, img.Data...)
	return out
}

// Read auto-detects and decodes an ISAX v2 or v1 container, or the legacy
// "ISA\x01" variant, from its magic bytes. A buffer with neither magic is
// not a container Read can recognize — a caller expecting a raw payload
// must know that out of band and skip Read entirely.
func Read(data []byte) (*Image, error) {
	if len(data) >= 4 && string(data[:4]) == magicISAX {
		switch {
		case len(data) >= v2HeaderSize && binary.LittleEndian.Uint32(data[4:8]) != 1:
			return readV2(data)
		case len(data) >= v1HeaderSize:
			return readV1(data)
		default:
			return nil, errors.Wrap(ErrContainerMalformed, "ISAX header truncated")
		}
	}
	if len(data) >= 4 && data[0] == 'I' && data[1] == 'S' && data[2] == 'A' && data[3] == legacyMagicByte3 {
		return readLegacy(data)
	}
	return nil, errors.Wrap(ErrContainerMalformed, "missing ISAX or legacy magic")
}

func readV2(data []byte) (*Image, error) {
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != 2 {
		return nil, errors.Wrapf(ErrContainerVersionUnsupported, "declared version %d in a 32-byte header", version)
	}
	entryPoint := binary.LittleEndian.Uint32(data[8:12])
	codeStart := binary.LittleEndian.Uint32(data[12:16])
	codeSize := binary.LittleEndian.Uint32(data[16:20])
	dataStart := binary.LittleEndian.Uint32(data[20:24])
	dataSize := binary.LittleEndian.Uint32(data[24:28])
	symSize := binary.LittleEndian.Uint32(data[28:32])

	offset := v2HeaderSize
	code, offset, err := sliceOf(data, offset, codeSize)
	if err != nil {
		return nil, err
	}
	dataBytes, offset, err := sliceOf(data, offset, dataSize)
	if err != nil {
		return nil, err
	}
	symBytes, _, err := sliceOf(data, offset, symSize)
	if err != nil {
		return nil, err
	}

	symbols, err := decodeSymbols(symBytes)
	if err != nil {
		return nil, err
	}
	return &Image{
		EntryPoint: int(entryPoint),
		CodeStart:  int(codeStart),
		Code:       cloneBytes(code),
		DataStart:  int(dataStart),
		Data:       cloneBytes(dataBytes),
		Symbols:    symbols,
	}, nil
}

func readV1(data []byte) (*Image, error) {
	// The v1 header is the first 24 bytes of the v2 layout: magic, version,
	// entry, code_start, code_size, data_start. It has no data_size, so the
	// data section is everything after the code.
	entryPoint := binary.LittleEndian.Uint32(data[8:12])
	codeStart := binary.LittleEndian.Uint32(data[12:16])
	codeSize := binary.LittleEndian.Uint32(data[16:20])
	dataStart := binary.LittleEndian.Uint32(data[20:24])

	offset := v1HeaderSize
	code, offset, err := sliceOf(data, offset, codeSize)
	if err != nil {
		return nil, err
	}
	dataBytes := data[offset:]
	return &Image{
		EntryPoint: int(entryPoint),
		CodeStart:  int(codeStart),
		Code:       cloneBytes(code),
		DataStart:  int(dataStart),
		Data:       cloneBytes(dataBytes),
	}, nil
}

func readLegacy(data []byte) (*Image, error) {
	if len(data) < 5 {
		return nil, errors.Wrap(ErrContainerMalformed, "legacy header truncated before name length")
	}
	nameLen := int(data[4])
	pos := 5
	if len(data) < pos+nameLen+8 {
		return nil, errors.Wrap(ErrContainerMalformed, "legacy header truncated before code_size/entry_point")
	}
	name := string(data[pos : pos+nameLen])
	pos += nameLen
	codeSize := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4
	entryPoint := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	code, _, err := sliceOf(data, pos, codeSize)
	if err != nil {
		return nil, err
	}
	return &Image{
		EntryPoint: int(entryPoint),
		ISAName:    name,
		Code:       cloneBytes(code),
	}, nil
}

func sliceOf(data []byte, offset int, size uint32) (slice []byte, next int, err error) {
	end := offset + int(size)
	if end > len(data) || end < offset {
		return nil, 0, errors.Wrapf(ErrContainerMalformed, "section at offset %d, size %d exceeds buffer of %d bytes", offset, size, len(data))
	}
	return data[offset:end], end, nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
