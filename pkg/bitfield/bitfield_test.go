package bitfield

import (
	"testing"
)

func TestParseRangeSingle(t *testing.T) {
	ranges, err := ParseRange("15:9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranges) != 1 || ranges[0] != (Range{High: 15, Low: 9}) {
		t.Fatalf("got %v", ranges)
	}
	if TotalWidth(ranges) != 7 {
		t.Fatalf("width = %d, want 7", TotalWidth(ranges))
	}
}

func TestParseRangeMulti(t *testing.T) {
	ranges, err := ParseRange("15:9,5:3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Range{{15, 9}, {5, 3}}
	for i, r := range want {
		if ranges[i] != r {
			t.Fatalf("range[%d] = %v, want %v", i, ranges[i], r)
		}
	}
}

func TestParseRangeInvalid(t *testing.T) {
	cases := []string{"", "9:15", "-1:0", "abc", "15:", ":9"}
	for _, c := range cases {
		if _, err := ParseRange(c); err == nil {
			t.Errorf("ParseRange(%q) expected error, got nil", c)
		}
	}
}

func TestExtractInsertSingleRange(t *testing.T) {
	ranges, _ := ParseRange("15:9")
	word, err := Insert(0, ranges, 0x55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Extract(word, ranges)
	if got != 0x55 {
		t.Fatalf("extract = %#x, want 0x55", got)
	}
}

func TestExtractInsertIsomorphism(t *testing.T) {
	specs := []string{"15:9", "14:9,5:3", "31:16,7:0", "0", "3:0,7:4"}
	for _, spec := range specs {
		ranges, err := ParseRange(spec)
		if err != nil {
			t.Fatalf("ParseRange(%q): %v", spec, err)
		}
		width := TotalWidth(ranges)
		if width > 20 {
			continue
		}
		for v := uint64(0); v < uint64(1)<<uint(width); v++ {
			word, err := Insert(0, ranges, v)
			if err != nil {
				t.Fatalf("Insert(%q, %d): %v", spec, v, err)
			}
			got := Extract(word, ranges)
			if got != v {
				t.Fatalf("spec %q: extract(insert(0, %d)) = %d, want %d", spec, v, got, v)
			}
		}
	}
}

func TestInsertValueOutOfRange(t *testing.T) {
	ranges, _ := ParseRange("3:0")
	if _, err := Insert(0, ranges, 16); err == nil {
		t.Fatal("expected ErrValueOutOfRange")
	}
}

func TestMultiFieldConcatenationOrder(t *testing.T) {
	// "14:9,5:3" declares the high range (14:9, 6 bits) as the MSB slice
	// and the low range (5:3, 3 bits) as the LSB slice of a 9-bit value.
	ranges, _ := ParseRange("14:9,5:3")
	// 9-bit value 100 = 0b001100100 -> hi=0b001100 (12), lo=0b100 (4)
	word, err := Insert(0, ranges, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hi := Extract(word, []Range{{14, 9}})
	lo := Extract(word, []Range{{5, 3}})
	if hi != 12 {
		t.Errorf("hi = %d, want 12", hi)
	}
	if lo != 4 {
		t.Errorf("lo = %d, want 4", lo)
	}
	if got := Extract(word, ranges); got != 100 {
		t.Errorf("round trip = %d, want 100", got)
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		value            uint64
		from, to         int
		want             int64
	}{
		{0x3F, 7, 16, 63},     // positive, unchanged
		{0x7F, 7, 16, -1},     // all-ones 7-bit -> -1
		{0x40, 7, 16, -64},    // sign bit set, minimal magnitude
		{0, 8, 32, 0},
	}
	for _, c := range cases {
		got, err := SignExtend(c.value, c.from, c.to)
		if err != nil {
			t.Fatalf("SignExtend(%d,%d,%d): %v", c.value, c.from, c.to, err)
		}
		if got != c.want {
			t.Errorf("SignExtend(%d,%d,%d) = %d, want %d", c.value, c.from, c.to, got, c.want)
		}
	}
}

func TestSignExtendProperty(t *testing.T) {
	for w := 1; w <= 16; w++ {
		for v := uint64(0); v < uint64(1)<<uint(w); v++ {
			got, err := SignExtend(v, w, 32)
			if err != nil {
				t.Fatalf("SignExtend(%d,%d,32): %v", v, w, err)
			}
			half := int64(1) << uint(w-1)
			var want int64
			if int64(v) < half {
				want = int64(v)
			} else {
				want = int64(v) - (int64(1) << uint(w))
			}
			if got != want {
				t.Errorf("SignExtend(%d,%d,32) = %d, want %d", v, w, got, want)
			}
		}
	}
}

func TestCreateMask(t *testing.T) {
	m, err := CreateMask(8)
	if err != nil || m != 0xFF {
		t.Fatalf("CreateMask(8) = %d,%v want 255,nil", m, err)
	}
	if _, err := CreateMask(0); err == nil {
		t.Fatal("expected error for zero width")
	}
	if _, err := CreateMask(65); err == nil {
		t.Fatal("expected error for width > 64")
	}
}

func TestIsPowerOfTwoAndLog2(t *testing.T) {
	for _, v := range []int{1, 2, 4, 8, 16, 128} {
		if !IsPowerOfTwo(v) {
			t.Errorf("IsPowerOfTwo(%d) = false, want true", v)
		}
		l, err := Log2(v)
		if err != nil {
			t.Fatalf("Log2(%d): %v", v, err)
		}
		if 1<<uint(l) != v {
			t.Errorf("Log2(%d) = %d, 1<<%d != %d", v, l, l, v)
		}
	}
	for _, v := range []int{0, 3, 5, 6, 100} {
		if IsPowerOfTwo(v) {
			t.Errorf("IsPowerOfTwo(%d) = true, want false", v)
		}
	}
}

func TestFitsSignedUnsigned(t *testing.T) {
	if !FitsSigned(-1, 7) || !FitsSigned(63, 7) || FitsSigned(64, 7) || FitsSigned(-65, 7) {
		t.Error("FitsSigned boundary checks failed")
	}
	if !FitsUnsigned(127, 7) || FitsUnsigned(128, 7) || FitsUnsigned(-1, 7) {
		t.Error("FitsUnsigned boundary checks failed")
	}
}

func TestEncodeFieldSigned(t *testing.T) {
	// S2: ADDI x1, -1 with 7-bit signed immediate -> 0x7F
	v, err := EncodeField(-1, 7, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x7F {
		t.Errorf("EncodeField(-1,7,signed) = %#x, want 0x7f", v)
	}
}

func TestJoinRanges(t *testing.T) {
	ranges, _ := ParseRange("15:9,5:3")
	if got := JoinRanges(ranges); got != "15:9,5:3" {
		t.Errorf("JoinRanges = %q, want %q", got, "15:9,5:3")
	}
}
