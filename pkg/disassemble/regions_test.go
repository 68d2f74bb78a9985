package disassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nsarkis/isax/pkg/isa"
)

func TestDataRegionsUserSuppliedWin(t *testing.T) {
	def := fixtureISA(t)
	user := []isa.MemorySpan{{Start: 0, End: 15}}
	got := DataRegions(def, 1<<16, 0, user)
	assert.Equal(t, user, got)
}

func TestDataRegionsCompactBinaryGetsNoAutomaticRegions(t *testing.T) {
	def := fixtureISA(t)
	def.MemoryMap.DataSection = isa.MemorySpan{Start: 100, End: 200}
	got := DataRegions(def, 16, 0, nil) // 16 bytes is tiny next to a 16-bit address space
	assert.Nil(t, got)
}

func TestDataRegionsFullSizeBinaryUsesMemoryMap(t *testing.T) {
	def := fixtureISA(t)
	def.MemoryMap.DataSection = isa.MemorySpan{Start: 100, End: 200}
	got := DataRegions(def, 1<<16, 0, nil)
	assert.Contains(t, got, def.MemoryMap.DataSection)
}

func TestInAnyRegion(t *testing.T) {
	regions := []isa.MemorySpan{{Start: 10, End: 20}}
	assert.True(t, inAnyRegion(regions, 15))
	assert.False(t, inAnyRegion(regions, 25))
}
