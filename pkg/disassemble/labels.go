package disassemble

import "fmt"

// ReconstructLabels builds an address-to-name map covering every address
// operand a run of coalesced instructions actually references: a known
// symbol (typically loaded from a container's symbol table) keeps its
// name, and every other referenced address gets a synthetic "L%04X" label
// so the Formatter never has to print a bare hex target for code that once
// had a name.
func ReconstructLabels(instrs []Instruction, known map[string]int64) map[int64]string {
	labels := make(map[int64]string, len(known))
	for name, addr := range known {
		labels[addr] = name
	}
	for _, inst := range instrs {
		for _, op := range inst.Operands {
			if op.Kind != OperandAddress {
				continue
			}
			if _, ok := labels[op.Value]; !ok {
				labels[op.Value] = fmt.Sprintf("L%04X", op.Value)
			}
		}
	}
	return labels
}
