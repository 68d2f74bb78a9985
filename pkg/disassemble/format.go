package disassemble

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/nsarkis/isax/pkg/isa"
)

// FormatOptions controls how Format renders a coalesced instruction stream.
type FormatOptions struct {
	// Color enables ANSI coloring of mnemonics, registers, and operands via
	// github.com/fatih/color. Off by default, matching color's own
	// NO_COLOR/non-tty auto-detection — a caller writing to a file should
	// leave this false.
	Color bool
	// Labels maps a resolved absolute address to the name Format should
	// print for it instead of a bare hex literal, typically the output of
	// ReconstructLabels.
	Labels map[int64]string
	// ShowAddresses prefixes each line with the instruction's address.
	ShowAddresses bool
	// ShowBytes appends the instruction's raw encoded bytes as hex.
	ShowBytes bool
}

// Format renders a coalesced instruction stream as assembly text, one
// instruction per line, in the ISA's own syntax (register prefix, hex
// prefix, case). This mirrors the teacher's catalog-driven
// "mnemonic + operand placeholders" approach, generalized from a fixed
// opcode table to a register file and operand-kind list read off the ISA.
func Format(def *isa.ISA, instrs []Instruction, opts FormatOptions) string {
	regNames := registerNamesByIndex(def)

	mnemonicColor := color.New(color.FgCyan, color.Bold).SprintFunc()
	registerColor := color.New(color.FgYellow).SprintFunc()
	immediateColor := color.New(color.FgGreen).SprintFunc()
	labelColor := color.New(color.FgMagenta).SprintFunc()
	addrColor := color.New(color.FgHiBlack).SprintFunc()

	var b strings.Builder
	for _, inst := range instrs {
		mnemonic := inst.Mnemonic
		if !def.Syntax.CaseSensitive {
			mnemonic = strings.ToUpper(mnemonic)
		}

		operands := make([]string, 0, len(inst.Operands))
		for _, op := range inst.Operands {
			switch op.Kind {
			case OperandRegister:
				operands = append(operands, formatRegister(def, regNames, op.Register, opts, registerColor))
			case OperandAddress:
				operands = append(operands, formatAddress(def, op.Value, opts, labelColor, immediateColor))
			default:
				operands = append(operands, formatImmediate(def, op.Value, opts, immediateColor))
			}
		}

		line := mnemonic
		if opts.Color {
			line = mnemonicColor(mnemonic)
		}
		if len(operands) > 0 {
			line = line + " " + strings.Join(operands, ", ")
		}

		if opts.ShowAddresses {
			addr := fmt.Sprintf("%04X", inst.Address)
			if opts.Color {
				line = addrColor(addr+":") + "  " + line
			} else {
				line = addr + ":  " + line
			}
		}
		if opts.ShowBytes {
			line += "  ; " + hex.EncodeToString(inst.Bytes)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func formatRegister(def *isa.ISA, names map[int64]string, index int64, opts FormatOptions, colorFn func(...interface{}) string) string {
	text, ok := names[index]
	if !ok {
		text = def.Syntax.RegisterPrefix + strconv.FormatInt(index, 10)
	}
	if opts.Color {
		return colorFn(text)
	}
	return text
}

func formatImmediate(def *isa.ISA, v int64, opts FormatOptions, colorFn func(...interface{}) string) string {
	text := formatNumber(def, v)
	if opts.Color {
		return colorFn(text)
	}
	return text
}

func formatAddress(def *isa.ISA, v int64, opts FormatOptions, labelColorFn, immColorFn func(...interface{}) string) string {
	if name, ok := opts.Labels[v]; ok {
		if opts.Color {
			return labelColorFn(name)
		}
		return name
	}
	text := formatNumber(def, v)
	if opts.Color {
		return immColorFn(text)
	}
	return text
}

func formatNumber(def *isa.ISA, v int64) string {
	if def.OperandFormatting.ImmediateBase == "decimal" {
		return strconv.FormatInt(v, 10)
	}
	prefix := def.Syntax.HexPrefix
	if prefix == "" {
		prefix = "0x"
	}
	if v < 0 {
		return "-" + prefix + strconv.FormatUint(uint64(-v), 16)
	}
	return prefix + strconv.FormatUint(uint64(v), 16)
}

func registerNamesByIndex(def *isa.ISA) map[int64]string {
	names := make(map[int64]string)
	for _, regs := range def.Registers {
		for _, r := range regs {
			if _, exists := names[int64(r.Index)]; exists {
				continue
			}
			names[int64(r.Index)] = r.Name
		}
	}
	return names
}
