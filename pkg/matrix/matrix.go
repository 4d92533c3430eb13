package matrix

import (
	"fmt"
	"strings"

	"dev/bravebird/frametime-bench/pkg/models"
)

// Profile is one combination of cargo build options
type Profile struct {
	OptLevel     OptLevel     `json:"opt_level"`
	Lto          Lto          `json:"lto"`
	CodegenUnits CodegenUnits `json:"codegen_units"`
	Strip        Strip        `json:"strip"`
	Panic        Panic        `json:"panic"`
}

// String renders the profile for logs
func (p Profile) String() string {
	return fmt.Sprintf("OptLevel::%s, Lto::%s, CodegenUnits::%s, Strip::%s, Panic::%s",
		p.OptLevel, p.Lto, p.CodegenUnits, p.Strip, p.Panic)
}

// Lines returns the non-empty cargo profile lines
func (p Profile) Lines() []string {
	var lines []string
	for _, line := range []string{
		p.OptLevel.Option(),
		p.Lto.Option(),
		p.CodegenUnits.Option(),
		p.Strip.Option(),
		p.Panic.Option(),
	} {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ProfileTOML renders a .cargo/config.toml that defines profile name on top of release
func ProfileTOML(name string, p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[profile.%s]\ninherits = \"release\"\n", name)
	for _, line := range p.Lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Plan is the resolved matrix: every profile is built once and measured once per wasm-opt level
type Plan struct {
	Profiles []Profile `json:"profiles"`
	WasmOpts []WasmOpt `json:"wasm_opts"`
}

// Size is the number of results the plan produces
func (p Plan) Size() int {
	return len(p.Profiles) * len(p.WasmOpts)
}

// Resolve turns a selection into a plan. Empty dimensions take their defaults:
// every opt-level, lto and codegen-units, no strip, unwind panics and every wasm-opt level.
func Resolve(sel models.MatrixSelection) (Plan, error) {
	optLevels, err := parseLevels("opt level", sel.OptLevels, OptLevels, OptLevels)
	if err != nil {
		return Plan{}, err
	}
	ltos, err := parseLevels("lto", sel.Lto, Ltos, Ltos)
	if err != nil {
		return Plan{}, err
	}
	cgus, err := parseLevels("codegen units", sel.CodegenUnits, AllCodegenUnits, AllCodegenUnits)
	if err != nil {
		return Plan{}, err
	}
	strips, err := parseLevels("strip", sel.Strip, Strips, []Strip{StripNone})
	if err != nil {
		return Plan{}, err
	}
	panics, err := parseLevels("panic", sel.Panic, Panics, []Panic{PanicUnwind})
	if err != nil {
		return Plan{}, err
	}
	wasmOpts, err := parseLevels("wasm-opt", sel.WasmOpt, WasmOpts, WasmOpts)
	if err != nil {
		return Plan{}, err
	}

	var profiles []Profile
	for _, o := range optLevels {
		for _, l := range ltos {
			for _, c := range cgus {
				for _, s := range strips {
					for _, p := range panics {
						profiles = append(profiles, Profile{
							OptLevel:     o,
							Lto:          l,
							CodegenUnits: c,
							Strip:        s,
							Panic:        p,
						})
					}
				}
			}
		}
	}

	return Plan{Profiles: profiles, WasmOpts: wasmOpts}, nil
}

// Label fills the option columns of a result
func Label(r *models.BenchResult, p Profile, w WasmOpt) {
	r.OptLevel = string(p.OptLevel)
	r.Lto = string(p.Lto)
	r.CodegenUnits = string(p.CodegenUnits)
	r.Strip = string(p.Strip)
	r.Panic = string(p.Panic)
	r.WasmOpt = string(w)
}
