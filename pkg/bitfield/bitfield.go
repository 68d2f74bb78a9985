// Package bitfield is the single source of truth for bit-range parsing,
// multi-range extraction/insertion, and sign extension. Every component
// that touches instruction-word bits goes through here; bit slicing must
// never be reimplemented elsewhere.
package bitfield

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Range is an inclusive [High, Low] bit position pair, High >= Low >= 0.
type Range struct {
	High int
	Low  int
}

// Width returns the number of bits the range covers.
func (r Range) Width() int {
	return r.High - r.Low + 1
}

// ErrInvalidRange is returned when a range spec is malformed.
var ErrInvalidRange = errors.New("invalid bit range")

// ErrValueOutOfRange is returned by Insert when a value does not fit the
// combined width of the supplied ranges.
var ErrValueOutOfRange = errors.New("value out of range for field width")

// ParseRange parses a bit-range spec such as "15:9" or the multi-range form
// "14:9,5:3". Ranges are returned in the order listed: the first range is
// the MSB-most slice of any later concatenation.
func ParseRange(spec string) ([]Range, error) {
	parts := strings.Split(spec, ",")
	ranges := make([]Range, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.Wrapf(ErrInvalidRange, "empty range component in %q", spec)
		}
		r, err := parseOneRange(part)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing range %q", spec)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func parseOneRange(part string) (Range, error) {
	if !strings.Contains(part, ":") {
		bit, err := strconv.Atoi(part)
		if err != nil || bit < 0 {
			return Range{}, errors.Wrapf(ErrInvalidRange, "bad single-bit position %q", part)
		}
		return Range{High: bit, Low: bit}, nil
	}

	fields := strings.SplitN(part, ":", 2)
	high, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
	low, err2 := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err1 != nil || err2 != nil {
		return Range{}, errors.Wrapf(ErrInvalidRange, "bad range %q", part)
	}
	if high < 0 || low < 0 {
		return Range{}, errors.Wrapf(ErrInvalidRange, "negative bit position in %q", part)
	}
	if high < low {
		return Range{}, errors.Wrapf(ErrInvalidRange, "high bit %d below low bit %d in %q", high, low, part)
	}
	return Range{High: high, Low: low}, nil
}

// TotalWidth returns the sum of widths across all ranges.
func TotalWidth(ranges []Range) int {
	w := 0
	for _, r := range ranges {
		w += r.Width()
	}
	return w
}

// Extract pulls the bits named by ranges out of word, concatenating them
// MSB-first in listed order: the first range supplies the highest bits of
// the result.
func Extract(word uint64, ranges []Range) uint64 {
	var result uint64
	shift := uint(TotalWidth(ranges))
	for _, r := range ranges {
		w := uint(r.Width())
		shift -= w
		mask := uint64(1)<<w - 1
		slice := (word >> uint(r.Low)) & mask
		result |= slice << shift
	}
	return result
}

// Insert is the dual of Extract: it returns word with the bits named by
// ranges replaced by value, taken MSB-first in listed order. It fails with
// ErrValueOutOfRange if value does not fit the combined field width.
func Insert(word uint64, ranges []Range, value uint64) (uint64, error) {
	width := TotalWidth(ranges)
	if width < 64 && value >= uint64(1)<<uint(width) {
		return 0, errors.Wrapf(ErrValueOutOfRange, "value %d does not fit in %d bits", value, width)
	}

	shift := uint(width)
	result := word
	for _, r := range ranges {
		w := uint(r.Width())
		shift -= w
		fieldMask := uint64(1)<<w - 1
		fieldValue := (value >> shift) & fieldMask
		clearMask := fieldMask << uint(r.Low)
		result = (result &^ clearMask) | (fieldValue << uint(r.Low))
	}
	return result, nil
}

// SignExtend treats value as a two's-complement number of fromWidth bits
// and extends it to toWidth bits, returning the result as a signed int64.
func SignExtend(value uint64, fromWidth, toWidth int) (int64, error) {
	if fromWidth <= 0 || toWidth <= 0 {
		return 0, errors.New("bit widths must be positive")
	}
	if fromWidth > toWidth {
		return 0, errors.New("source width cannot exceed target width")
	}
	if fromWidth < 64 && value >= uint64(1)<<uint(fromWidth) {
		return 0, errors.Errorf("value %d does not fit in %d bits", value, fromWidth)
	}

	signBit := uint64(1) << uint(fromWidth-1)
	if value&signBit == 0 {
		return int64(value), nil
	}
	// Negative: fill the high bits with ones up to toWidth, then
	// reinterpret as a signed value of that width.
	extendMask := (uint64(1)<<uint(toWidth) - 1) &^ (uint64(1)<<uint(fromWidth) - 1)
	extended := value | extendMask
	return asSigned(extended, toWidth), nil
}

// asSigned reinterprets the low width bits of v as a two's-complement
// signed integer.
func asSigned(v uint64, width int) int64 {
	if width >= 64 {
		return int64(v)
	}
	mask := uint64(1)<<uint(width) - 1
	v &= mask
	signBit := uint64(1) << uint(width-1)
	if v&signBit != 0 {
		return int64(v) - int64(mask) - 1
	}
	return int64(v)
}

// CreateMask returns a mask with the low bitWidth bits set.
func CreateMask(bitWidth int) (uint64, error) {
	if bitWidth <= 0 {
		return 0, errors.New("bit width must be positive")
	}
	if bitWidth > 64 {
		return 0, errors.New("bit width cannot exceed 64")
	}
	if bitWidth == 64 {
		return ^uint64(0), nil
	}
	return uint64(1)<<uint(bitWidth) - 1, nil
}

// IsPowerOfTwo reports whether value is a positive power of two.
func IsPowerOfTwo(value int) bool {
	return value > 0 && value&(value-1) == 0
}

// Log2 returns the base-2 logarithm of value, which must be a power of two.
func Log2(value int) (int, error) {
	if !IsPowerOfTwo(value) {
		return 0, errors.Errorf("%d is not a power of two", value)
	}
	n := 0
	for value > 1 {
		value >>= 1
		n++
	}
	return n, nil
}

// FitsUnsigned reports whether value fits in an unsigned field of the
// given bit width.
func FitsUnsigned(value int64, width int) bool {
	if value < 0 {
		return false
	}
	if width >= 64 {
		return true
	}
	return uint64(value) < uint64(1)<<uint(width)
}

// FitsSigned reports whether value fits in a two's-complement signed field
// of the given bit width.
func FitsSigned(value int64, width int) bool {
	if width <= 0 || width > 64 {
		return false
	}
	if width == 64 {
		return true
	}
	max := int64(1)<<uint(width-1) - 1
	min := -(int64(1) << uint(width-1))
	return value >= min && value <= max
}

// EncodeField reduces a signed or unsigned value to its raw width-bit
// pattern, suitable for passing to Insert. It returns an error describing
// which bound was violated for inclusion in ImmediateOutOfRange-style
// errors upstream.
func EncodeField(value int64, width int, signed bool) (uint64, error) {
	if signed {
		if !FitsSigned(value, width) {
			return 0, errors.Errorf("value %d does not fit in signed %d-bit field", value, width)
		}
		mask := uint64(1)<<uint(width) - 1
		return uint64(value) & mask, nil
	}
	if !FitsUnsigned(value, width) {
		return 0, errors.Errorf("value %d does not fit in unsigned %d-bit field", value, width)
	}
	return uint64(value), nil
}

// String renders a Range back to its textual spec form, e.g. "15:9", or
// "5" for a single bit.
func (r Range) String() string {
	if r.High == r.Low {
		return fmt.Sprintf("%d", r.High)
	}
	return fmt.Sprintf("%d:%d", r.High, r.Low)
}

// JoinRanges renders a slice of ranges back to its comma-joined spec form.
func JoinRanges(ranges []Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
