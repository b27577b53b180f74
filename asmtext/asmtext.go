// Package asmtext implements the textual `.sasm` assembly format (spec §6):
// one instruction per line, mnemonic in upper case followed by whitespace
// separated immediate(s), blank lines ignored. It also supports an optional
// label convention (`name:` on its own line) purely as a human-writing
// convenience over JUMP/JUMP0/DUMP/JUMPA's instruction-index immediates —
// the translator itself never emits labels, only resolved offsets.
//
// Grounded on the teacher's own line-oriented assembler front end
// (gvm/vm/compile.go's preprocessLine/parseInputLine): comment stripping via
// a single module-level regexp and a two-pass (collect labels, then resolve)
// compile. A label is any line ending in `:`; operands are matched against
// label names exactly, by map lookup.
package asmtext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sofl/isa"
)

var commentPattern = regexp.MustCompile(`//.*`)

// Assemble parses textual assembly into an instruction list.
func Assemble(lines []string) ([]isa.Instr, error) {
	labels := make(map[string]int)
	type rawLine struct {
		mnemonic string
		args     []string
		lineNo   int
	}
	raw := make([]rawLine, 0, len(lines))

	for lineNo, line := range lines {
		line = commentPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if strings.ContainsAny(label, " \t") {
				return nil, fmt.Errorf("asmtext: line %d: invalid label %q", lineNo+1, label)
			}
			labels[label] = len(raw)
			continue
		}

		fields := strings.Fields(line)
		raw = append(raw, rawLine{mnemonic: fields[0], args: fields[1:], lineNo: lineNo + 1})
	}

	instrs := make([]isa.Instr, len(raw))
	for i, r := range raw {
		op, ok := isa.ParseMnemonic(strings.ToUpper(r.mnemonic))
		if !ok {
			return nil, fmt.Errorf("asmtext: line %d: unknown mnemonic %q", r.lineNo, r.mnemonic)
		}

		var arg int32
		if len(r.args) > 0 {
			argStr := r.args[0]
			if target, ok := labels[argStr]; ok {
				switch op {
				case isa.JUMPA:
					arg = int32(target)
				default:
					arg = int32(target - i)
				}
			} else {
				n, err := strconv.ParseInt(argStr, 0, 32)
				if err != nil {
					return nil, fmt.Errorf("asmtext: line %d: invalid immediate %q: %w", r.lineNo, argStr, err)
				}
				arg = int32(n)
			}
		}

		instrs[i] = isa.Instr{Op: op, Arg: arg}
	}

	return instrs, nil
}

// Disassemble renders an instruction list back to textual assembly, one
// mnemonic per line.
func Disassemble(instrs []isa.Instr) []string {
	lines := make([]string, len(instrs))
	for i, instr := range instrs {
		lines[i] = instr.String()
	}
	return lines
}
