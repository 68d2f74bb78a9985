package disassemble

import "github.com/nsarkis/isax/pkg/isa"

// DataRegions decides which address ranges to treat as data rather than
// code, before a single instruction is decoded. User-supplied regions
// always win. Failing that, a full address-space binary uses the ISA's
// declared memory map (interrupt vectors, data section, MMIO); a compact
// binary — one much smaller than the ISA's address space — gets no
// automatic regions at all, since absolute ISA addresses don't describe
// where a relocatable blob's data lives. The in-loop heuristics in
// Disassemble (consecutive NOPs, runs of undecodable words) carry the rest
// of that job for compact binaries.
func DataRegions(def *isa.ISA, codeLen int, origin int, userRegions []isa.MemorySpan) []isa.MemorySpan {
	if len(userRegions) > 0 {
		return userRegions
	}

	addressBits := def.AddressBits
	if addressBits <= 0 || addressBits > 62 {
		addressBits = 32
	}
	addressSpaceSize := 1 << uint(addressBits)
	if codeLen < addressSpaceSize/10 {
		return nil
	}

	var regions []isa.MemorySpan
	add := func(span isa.MemorySpan) {
		if span.End > span.Start || span.End == span.Start {
			regions = append(regions, span)
		}
	}
	if def.MemoryMap.InterruptVectors.End != 0 || def.MemoryMap.InterruptVectors.Start != 0 {
		add(def.MemoryMap.InterruptVectors)
	}
	if def.MemoryMap.DataSection.End != 0 || def.MemoryMap.DataSection.Start != 0 {
		add(def.MemoryMap.DataSection)
	}
	if def.MemoryMap.MMIO.End != 0 || def.MemoryMap.MMIO.Start != 0 {
		add(def.MemoryMap.MMIO)
	}
	return regions
}

func inAnyRegion(regions []isa.MemorySpan, addr int) bool {
	for _, r := range regions {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}
