// Command isax is the command-line front end for the assembler and
// disassembler toolkit: it assembles source text into ISAX containers and
// disassembles them back into readable assembly, driven entirely by an
// ISA description file rather than any instruction set baked into the
// binary.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nsarkis/isax/pkg/assemble"
	"github.com/nsarkis/isax/pkg/container"
	"github.com/nsarkis/isax/pkg/disassemble"
	"github.com/nsarkis/isax/pkg/isa"
	"github.com/nsarkis/isax/pkg/symtab"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "isax",
		Short: "Data-driven ISA assembler/disassembler toolkit",
	}

	var isaPath string
	var verbose bool
	var noColor bool
	rootCmd.PersistentFlags().StringVar(&isaPath, "isa", "", "path to an ISA description (.json/.yaml); falls back to the isax.yaml config's \"isa\" key")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "trace assembly/disassembly progress to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colorized disassembly output")

	cobra.OnInitialize(func() { initConfig(rootCmd) })

	rootCmd.AddCommand(
		newAssembleCmd(&isaPath, &verbose),
		newDisassembleCmd(&isaPath, &verbose, &noColor),
		newValidateCmd(&isaPath),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig wires viper to isax.yaml (searched in the working directory
// and $HOME) plus ISAX_-prefixed environment variables, supplying defaults
// for flags the user left unset — per-invocation flags always win.
func initConfig(root *cobra.Command) {
	viper.SetConfigName("isax")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("ISAX")
	viper.AutomaticEnv()
	viper.SetDefault("isa", "")
	viper.SetDefault("color", true)
	_ = viper.ReadInConfig() // absent config file is not an error

	isaFlag := root.PersistentFlags().Lookup("isa")
	if !isaFlag.Changed {
		if def := viper.GetString("isa"); def != "" {
			_ = isaFlag.Value.Set(def)
		}
	}
	colorFlag := root.PersistentFlags().Lookup("no-color")
	if !colorFlag.Changed && !viper.GetBool("color") {
		_ = colorFlag.Value.Set("true")
	}
}

func loadISA(path string) (*isa.ISA, error) {
	if path == "" {
		return nil, fmt.Errorf("no ISA description given (--isa flag, ISAX_ISA env var, or isax.yaml \"isa\" key)")
	}
	return isa.Load(path)
}

func traceFunc(verbose bool) func(format string, args ...interface{}) {
	if !verbose {
		return nil
	}
	return func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, "isax: "+format+"\n", args...)
	}
}

func newAssembleCmd(isaPath *string, verbose *bool) *cobra.Command {
	var out string
	var raw bool
	var listSymbols bool

	cmd := &cobra.Command{
		Use:   "assemble <source...>",
		Short: "Assemble source files into an ISAX container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadISA(*isaPath)
			if err != nil {
				return err
			}

			var sources []string
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				sources = append(sources, string(data))
			}
			source := strings.Join(sources, "\n")

			origin := def.DefaultCodeStart
			result, err := assemble.Assemble(def, source, origin, traceFunc(*verbose))
			if err != nil {
				return fmt.Errorf("assemble: %w", err)
			}

			img := container.Image{
				EntryPoint: result.Origin,
				CodeStart:  result.Origin,
				Code:       result.Code,
				DataStart:  result.Origin + len(result.Code),
				Data:       result.Data,
				Symbols:    result.Symbols,
			}

			var outBytes []byte
			if raw {
				outBytes = container.WriteRaw(img)
			} else {
				outBytes, err = container.Write(img)
				if err != nil {
					return fmt.Errorf("writing container: %w", err)
				}
			}

			if out == "" {
				return fmt.Errorf("--out is required")
			}
			if err := os.WriteFile(out, outBytes, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Printf("assembled %d code byte(s), %d data byte(s) -> %s\n", len(result.Code), len(result.Data), out)

			if listSymbols {
				printSymbols(result.Symbols)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output container path")
	cmd.Flags().BoolVar(&raw, "raw", false, "write a bare code+data payload instead of an ISAX container")
	cmd.Flags().BoolVar(&listSymbols, "list-symbols", false, "print the resolved symbol table after assembling")
	return cmd
}

func newDisassembleCmd(isaPath *string, verbose *bool, noColor *bool) *cobra.Command {
	var out string
	var showAddresses bool
	var showBytes bool
	var dataRanges string
	var coalesce bool
	var withLabels bool

	cmd := &cobra.Command{
		Use:   "disassemble <binary>",
		Short: "Disassemble an ISAX container (or raw image) into assembly text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadISA(*isaPath)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			origin := def.DefaultCodeStart
			code := raw
			var symbols []symtab.Symbol
			if img, err := container.Read(raw); err == nil {
				origin = img.CodeStart
				code = img.Code
				symbols = img.Symbols
			}

			regions, err := parseDataRanges(dataRanges)
			if err != nil {
				return err
			}

			result, err := disassemble.Disassemble(def, code, origin, regions, coalesce, traceFunc(*verbose))
			if err != nil {
				return fmt.Errorf("disassemble: %w", err)
			}
			instrs := result.Instructions

			opts := disassemble.FormatOptions{
				Color:         !*noColor,
				ShowAddresses: showAddresses,
				ShowBytes:     showBytes,
			}
			if withLabels {
				known := make(map[string]int64, len(symbols))
				for _, s := range symbols {
					if s.Defined {
						known[s.Name] = s.Value
					}
				}
				opts.Labels = disassemble.ReconstructLabels(instrs, known)
			}

			text := disassemble.Format(def, instrs, opts)
			for _, block := range result.DataBlocks {
				text += fmt.Sprintf("%04X:  .data  %d byte(s)\n", block.Address, len(block.Bytes))
			}

			if out == "" {
				fmt.Print(text)
				return nil
			}
			return os.WriteFile(out, []byte(text), 0o644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write disassembly to a file instead of stdout")
	cmd.Flags().BoolVar(&showAddresses, "show-addresses", false, "prefix each line with its address")
	cmd.Flags().BoolVar(&showBytes, "show-bytes", false, "append each instruction's raw bytes as hex")
	cmd.Flags().StringVar(&dataRanges, "data", "", "comma-separated start-end address ranges to force as data, e.g. 0x100-0x200")
	cmd.Flags().BoolVar(&coalesce, "coalesce", true, "fold recognized instruction sequences back into pseudo-instructions")
	cmd.Flags().BoolVar(&withLabels, "labels", false, "reconstruct symbolic labels for address operands")
	return cmd
}

func newValidateCmd(isaPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate an ISA description, printing a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadISA(*isaPath)
			if err != nil {
				return err
			}
			regCount := 0
			for _, regs := range def.Registers {
				regCount += len(regs)
			}
			fmt.Printf("ISA:          %s %s\n", def.Name, def.Version)
			fmt.Printf("Word size:    %d bits (instruction size %d bits)\n", def.WordSize, def.InstructionSize)
			fmt.Printf("Endianness:   %s\n", def.Endianness)
			fmt.Printf("Registers:    %d\n", regCount)
			fmt.Printf("Instructions: %d real, %d pseudo\n", len(def.Instructions), len(def.PseudoInstructions))
			fmt.Printf("Directives:   %d\n", len(def.Directives))
			fmt.Println("OK")
			return nil
		},
	}
}

func printSymbols(symbols []symtab.Symbol) {
	sorted := make([]symtab.Symbol, len(symbols))
	copy(sorted, symbols)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, s := range sorted {
		if !s.Defined {
			continue
		}
		fmt.Printf("  %-24s %s 0x%X\n", s.Name, s.Kind, s.Value)
	}
}

func parseDataRanges(s string) ([]isa.MemorySpan, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var spans []isa.MemorySpan
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid --data range %q (want start-end)", part)
		}
		start, err := parseAddress(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("invalid --data range %q: %w", part, err)
		}
		end, err := parseAddress(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("invalid --data range %q: %w", part, err)
		}
		spans = append(spans, isa.MemorySpan{Start: start, End: end})
	}
	return spans, nil
}

func parseAddress(s string) (int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
