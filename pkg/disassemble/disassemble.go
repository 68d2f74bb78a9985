package disassemble

import "github.com/nsarkis/isax/pkg/isa"

// DataBlock is a contiguous run of bytes Disassemble decided was data rather
// than code, tagged with its starting address.
type DataBlock struct {
	Address int
	Bytes   []byte
}

// Result is everything Disassemble recovered from one code image: the
// instruction stream (real instructions plus any pseudo-instructions
// Coalesce folded them back into) interleaved in address order with
// synthetic NOP/UNKNOWN markers, and the data regions carved out of it.
type Result struct {
	Instructions []Instruction
	DataBlocks   []DataBlock
}

type invalidWord struct {
	addr int
	raw  []byte
}

// Disassemble walks code one instruction-word at a time starting at origin,
// classifying each word as data (per DataRegions), a NOP (an all-zero word,
// reported individually unless a run of more than
// def.DataDetection.MaxNopsBeforeData of them switches to data mode), a
// real instruction, or — after a run of def.DataDetection.UnknownRunThreshold
// words matching no fingerprint at all — a switch to data mode. Once in
// data mode, def.DataDetection.MinConsecutiveForCode consecutive
// successfully-decoded words switch back to code mode; the switch is not
// permanent. When coalesce is true, runs of consecutively decoded real
// instructions are handed to Coalesce so pseudo-instructions reconstitute
// before Disassemble returns; when false, every real instruction is
// reported as decoded, with no pseudo folding. trace is nil-safe and, when
// non-nil, is called with progress lines a caller can surface under
// --verbose; pass nil to run silently.
func Disassemble(def *isa.ISA, code []byte, origin int, userRegions []isa.MemorySpan, coalesce bool, trace func(format string, args ...interface{})) (*Result, error) {
	if trace == nil {
		trace = func(string, ...interface{}) {}
	}
	instrBytes := (def.InstructionSize + 7) / 8
	regions := DataRegions(def, len(code), origin, userRegions)
	trace("disassembling %d byte(s) from origin 0x%x, %d user region(s)", len(code), origin, len(userRegions))

	unknownThreshold := def.DataDetection.UnknownRunThreshold
	if unknownThreshold <= 0 {
		unknownThreshold = 3
	}
	codeThreshold := def.DataDetection.MinConsecutiveForCode
	if codeThreshold <= 0 {
		codeThreshold = 3
	}
	maxNops := def.DataDetection.MaxNopsBeforeData // 0 disables the heuristic

	var result Result
	var run []Decoded
	var pendingInvalid []invalidWord
	var pendingNop []invalidWord

	flushRun := func() error {
		if len(run) == 0 {
			return nil
		}
		if !coalesce {
			for _, d := range run {
				result.Instructions = append(result.Instructions, realInstruction(def, d))
			}
			run = nil
			return nil
		}
		coalesced, err := Coalesce(def, run)
		if err != nil {
			return err
		}
		result.Instructions = append(result.Instructions, coalesced...)
		run = nil
		return nil
	}
	flushPendingAsUnknown := func() {
		for _, w := range pendingInvalid {
			result.Instructions = append(result.Instructions, Instruction{Address: w.addr, Bytes: w.raw, Mnemonic: "UNKNOWN"})
		}
		pendingInvalid = nil
	}
	flushPendingNop := func() {
		for _, w := range pendingNop {
			result.Instructions = append(result.Instructions, Instruction{Address: w.addr, Bytes: w.raw, Mnemonic: "NOP"})
		}
		pendingNop = nil
	}
	appendDataWords := func(words []invalidWord) {
		if len(words) == 0 {
			return
		}
		var blockBytes []byte
		for _, w := range words {
			blockBytes = append(blockBytes, w.raw...)
		}
		result.DataBlocks = appendData(result.DataBlocks, words[0].addr, blockBytes)
	}

	inData := false
	var pendingGood []Decoded // tentative code-mode decodes seen while inData, not yet confirmed
	i := 0
	for i+instrBytes <= len(code) {
		addr := origin + i
		raw := code[i : i+instrBytes]

		if inAnyRegion(regions, addr) {
			if err := flushRun(); err != nil {
				return nil, err
			}
			flushPendingAsUnknown()
			flushPendingNop()
			if len(pendingGood) > 0 {
				appendDataWords(decodedAsInvalid(pendingGood))
				pendingGood = nil
			}
			result.DataBlocks = appendData(result.DataBlocks, addr, raw)
			i += instrBytes
			continue
		}

		if inData {
			word := bytesToWord(raw, def.Endianness)
			if d, err := Decode(def, word, addr, raw); err == nil {
				pendingGood = append(pendingGood, *d)
				if len(pendingGood) >= codeThreshold {
					trace("switched back to code mode at 0x%x after %d consecutive successful decode(s)", pendingGood[0].Address, codeThreshold)
					inData = false
					run = append(run, pendingGood...)
					pendingGood = nil
				}
			} else {
				if len(pendingGood) > 0 {
					appendDataWords(decodedAsInvalid(pendingGood))
					pendingGood = nil
				}
				result.DataBlocks = appendData(result.DataBlocks, addr, raw)
			}
			i += instrBytes
			continue
		}

		if isAllZero(raw) {
			if err := flushRun(); err != nil {
				return nil, err
			}
			flushPendingAsUnknown()
			pendingNop = append(pendingNop, invalidWord{addr: addr, raw: raw})
			if maxNops > 0 && len(pendingNop) > maxNops {
				if err := flushRun(); err != nil {
					return nil, err
				}
				flushPendingAsUnknown()
				start := pendingNop[0].addr
				appendDataWords(pendingNop)
				pendingNop = nil
				inData = true
				trace("switched to data mode at 0x%x after %d consecutive NOP word(s)", start, maxNops+1)
			}
			i += instrBytes
			continue
		}
		flushPendingNop()

		word := bytesToWord(raw, def.Endianness)
		if d, err := Decode(def, word, addr, raw); err == nil {
			flushPendingAsUnknown()
			run = append(run, *d)
			i += instrBytes
			continue
		}

		if err := flushRun(); err != nil {
			return nil, err
		}
		pendingInvalid = append(pendingInvalid, invalidWord{addr: addr, raw: raw})
		if len(pendingInvalid) >= unknownThreshold {
			if err := flushRun(); err != nil {
				return nil, err
			}
			start := pendingInvalid[0].addr
			appendDataWords(pendingInvalid)
			pendingInvalid = nil
			inData = true
			trace("switched to data mode at 0x%x after %d consecutive unmatched word(s)", start, unknownThreshold)
		}
		i += instrBytes
	}

	if err := flushRun(); err != nil {
		return nil, err
	}
	flushPendingAsUnknown()
	flushPendingNop()
	if len(pendingGood) > 0 {
		appendDataWords(decodedAsInvalid(pendingGood))
	}

	if i < len(code) {
		result.DataBlocks = appendData(result.DataBlocks, origin+i, code[i:])
	}

	return &result, nil
}

// decodedAsInvalid turns tentative data-mode decodes that never reached
// MinConsecutiveForCode back into raw bytes, so they fold into the
// surrounding DataBlock rather than being reported as instructions.
func decodedAsInvalid(decoded []Decoded) []invalidWord {
	out := make([]invalidWord, len(decoded))
	for i, d := range decoded {
		out[i] = invalidWord{addr: d.Address, raw: d.Bytes}
	}
	return out
}

func appendData(blocks []DataBlock, addr int, raw []byte) []DataBlock {
	if n := len(blocks); n > 0 {
		last := &blocks[n-1]
		if last.Address+len(last.Bytes) == addr {
			last.Bytes = append(last.Bytes, raw...)
			return blocks
		}
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return append(blocks, DataBlock{Address: addr, Bytes: cp})
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func bytesToWord(raw []byte, endian isa.Endianness) uint64 {
	var word uint64
	for i, b := range raw {
		shift := uint(i * 8)
		if endian == isa.Big {
			shift = uint(len(raw)-1-i) * 8
		}
		word |= uint64(b) << shift
	}
	return word
}
