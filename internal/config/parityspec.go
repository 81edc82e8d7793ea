package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParitySpec is the in-memory configuration spec.md §6 calls the "parity
// spec": per-instrument sizing, per-session range-start times, and the
// global entry cutoff / breakout rounding rule every stream shares.
type ParitySpec struct {
	Instruments map[string]InstrumentSpec `yaml:"instruments"`
	Sessions    map[string]SessionSpec    `yaml:"sessions"`
	Global      GlobalSpec                `yaml:"global"`
}

// InstrumentSpec carries the per-instrument sizing and rounding inputs
// (tick_size, base_target, is_micro, optional base_instrument for a
// micro contract's underlying).
type InstrumentSpec struct {
	TickSize       float64 `yaml:"tick_size"`
	BaseTarget     float64 `yaml:"base_target"`
	IsMicro        bool    `yaml:"is_micro"`
	BaseInstrument string  `yaml:"base_instrument,omitempty"`
}

// SessionSpec carries the per-session range-start time.
type SessionSpec struct {
	RangeStartTime string `yaml:"range_start_time"`
}

// GlobalSpec carries the settings shared by every stream regardless of
// instrument or session.
type GlobalSpec struct {
	EntryCutoff EntryCutoffSpec `yaml:"entry_cutoff"`
	Breakout    BreakoutSpec    `yaml:"breakout"`
}

// EntryCutoffSpec names the Chicago wall-clock market close time.
type EntryCutoffSpec struct {
	MarketCloseTime string `yaml:"market_close_time"`
}

// BreakoutSpec names the tick-rounding method applied to breakout levels.
type BreakoutSpec struct {
	TickRounding TickRoundingSpec `yaml:"tick_rounding"`
}

// TickRoundingSpec names the rounding method: "favorable" (long rounds
// up, short rounds down); any other value rounds to the nearest tick.
type TickRoundingSpec struct {
	Method string `yaml:"method"`
}

// LoadParitySpec loads the parity spec from a YAML file.
func LoadParitySpec(path string) (*ParitySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parity spec: %w", err)
	}
	var spec ParitySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse parity spec YAML: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the spec has at least one instrument/session defined
// and that the global entry cutoff and breakout rounding method are set.
func (p *ParitySpec) Validate() error {
	if len(p.Instruments) == 0 {
		return fmt.Errorf("parity spec: no instruments defined")
	}
	if len(p.Sessions) == 0 {
		return fmt.Errorf("parity spec: no sessions defined")
	}
	if p.Global.EntryCutoff.MarketCloseTime == "" {
		return fmt.Errorf("parity spec: global.entry_cutoff.market_close_time required")
	}
	if p.Global.Breakout.TickRounding.Method == "" {
		return fmt.Errorf("parity spec: global.breakout.tick_rounding.method required")
	}
	for name, instr := range p.Instruments {
		if instr.TickSize <= 0 {
			return fmt.Errorf("parity spec: instrument %s: tick_size must be positive", name)
		}
	}
	return nil
}

// Instrument looks up an instrument's spec, returning ok=false if absent.
func (p *ParitySpec) Instrument(name string) (InstrumentSpec, bool) {
	i, ok := p.Instruments[name]
	return i, ok
}

// Session looks up a session's spec, returning ok=false if absent.
func (p *ParitySpec) Session(name string) (SessionSpec, bool) {
	s, ok := p.Sessions[name]
	return s, ok
}
