// Package matrix describes the build options benchmarked against each other
// and renders them as cargo profile settings and wasm-opt arguments.
package matrix

import (
	"fmt"
	"strings"
)

// OptLevel is the cargo opt-level
type OptLevel string

const (
	OptLevelS     OptLevel = "S"
	OptLevelZ     OptLevel = "Z"
	OptLevelThree OptLevel = "Three"
)

// OptLevels lists every opt-level in benchmark order
var OptLevels = []OptLevel{OptLevelS, OptLevelZ, OptLevelThree}

// Option returns the cargo profile line
func (o OptLevel) Option() string {
	switch o {
	case OptLevelS:
		return `opt-level = "s"`
	case OptLevelZ:
		return `opt-level = "z"`
	case OptLevelThree:
		return `opt-level = "3"`
	}
	return ""
}

// Lto is the cargo lto setting
type Lto string

const (
	LtoOff  Lto = "Off"
	LtoThin Lto = "Thin"
	LtoFat  Lto = "Fat"
)

var Ltos = []Lto{LtoOff, LtoThin, LtoFat}

func (l Lto) Option() string {
	switch l {
	case LtoOff:
		return `lto = "off"`
	case LtoThin:
		return `lto = "thin"`
	case LtoFat:
		return `lto = "fat"`
	}
	return ""
}

// CodegenUnits is the cargo codegen-units setting
type CodegenUnits string

const (
	CodegenUnitsOne     CodegenUnits = "One"
	CodegenUnitsDefault CodegenUnits = "Default"
)

var AllCodegenUnits = []CodegenUnits{CodegenUnitsOne, CodegenUnitsDefault}

func (c CodegenUnits) Option() string {
	if c == CodegenUnitsOne {
		return "codegen-units = 1"
	}
	return ""
}

// Strip is the cargo strip setting
type Strip string

const (
	StripNone      Strip = "None"
	StripDebugInfo Strip = "DebugInfo"
)

var Strips = []Strip{StripNone, StripDebugInfo}

func (s Strip) Option() string {
	if s == StripDebugInfo {
		return `strip = "debuginfo"`
	}
	return ""
}

// Panic is the cargo panic strategy
type Panic string

const (
	PanicUnwind Panic = "Unwind"
	PanicAbort  Panic = "Abort"
)

var Panics = []Panic{PanicUnwind, PanicAbort}

func (p Panic) Option() string {
	if p == PanicAbort {
		return `panic = "abort"`
	}
	return ""
}

// WasmOpt is the wasm-opt pass applied after wasm-bindgen
type WasmOpt string

const (
	WasmOptNone  WasmOpt = "None"
	WasmOptS     WasmOpt = "S"
	WasmOptZ     WasmOpt = "Z"
	WasmOptThree WasmOpt = "Three"
	WasmOptBoth  WasmOpt = "Both"
)

var WasmOpts = []WasmOpt{WasmOptNone, WasmOptS, WasmOptZ, WasmOptThree, WasmOptBoth}

// Enabled reports whether wasm-opt runs at all
func (w WasmOpt) Enabled() bool {
	return w != WasmOptNone && w != ""
}

// Args returns the wasm-opt optimization flags
func (w WasmOpt) Args() []string {
	switch w {
	case WasmOptS:
		return []string{"-Os"}
	case WasmOptZ:
		return []string{"-Oz"}
	case WasmOptThree:
		return []string{"-O3"}
	case WasmOptBoth:
		return []string{"-O", "-s", "100", "-ol", "100"}
	}
	return nil
}

// parseLevel matches name case-insensitively against the known levels
func parseLevel[T ~string](dimension, name string, levels []T) (T, error) {
	for _, level := range levels {
		if strings.EqualFold(string(level), strings.TrimSpace(name)) {
			return level, nil
		}
	}
	known := make([]string, len(levels))
	for i, level := range levels {
		known[i] = string(level)
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q (want one of %s)", dimension, name, strings.Join(known, ", "))
}

func parseLevels[T ~string](dimension string, names []string, levels, defaults []T) ([]T, error) {
	if len(names) == 0 {
		return defaults, nil
	}
	out := make([]T, 0, len(names))
	seen := make(map[T]bool)
	for _, name := range names {
		level, err := parseLevel(dimension, name, levels)
		if err != nil {
			return nil, err
		}
		if seen[level] {
			continue
		}
		seen[level] = true
		out = append(out, level)
	}
	return out, nil
}
