package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/wave"
	"gopkg.in/yaml.v2"
)

// PulseSpec is one pulse of a program file. On and Off list GPIO numbers.
type PulseSpec struct {
	On           []int  `yaml:"On,omitempty"`
	Off          []int  `yaml:"Off,omitempty"`
	Delay        uint32 `yaml:"Delay"`
	SampleLevels bool   `yaml:"SampleLevels,omitempty"`
	SampleTick   bool   `yaml:"SampleTick,omitempty"`
}

// WaveSpec is a named pulse train
type WaveSpec struct {
	Name   string      `yaml:"Name"`
	Pulses []PulseSpec `yaml:"Pulses"`
}

// OpSpec is one chain command. Op is play, delay, loop, end or forever.
type OpSpec struct {
	Op     string `yaml:"Op"`
	Wave   string `yaml:"Wave,omitempty"`
	Micros int    `yaml:"Micros,omitempty"`
	Count  int    `yaml:"Count,omitempty"`
}

// Program is a program file: waves to create, then either the first wave played alone in Mode
// or the Chain
type Program struct {
	Waves []WaveSpec `yaml:"Waves"`
	// Mode is oneshot or repeat and only applies without a chain
	Mode  string   `yaml:"Mode,omitempty"`
	Chain []OpSpec `yaml:"Chain,omitempty"`
}

// LoadProgram reads a program file
func LoadProgram(path string) (Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, errors.Wrapf(err, "could not read program %s", path)
	}
	return ParseProgram(data)
}

// ParseProgram decodes and checks a program
func ParseProgram(data []byte) (Program, error) {
	var p Program
	err := yaml.UnmarshalStrict(data, &p)
	if err != nil {
		return Program{}, errors.Wrap(err, "could not decode program")
	}

	if len(p.Waves) == 0 {
		return Program{}, errors.New("program has no waves")
	}

	seen := make(map[string]bool)
	for _, w := range p.Waves {
		if w.Name == "" {
			return Program{}, errors.New("program has a wave without a name")
		}
		if seen[w.Name] {
			return Program{}, errors.Newf("program has two waves named %q", w.Name)
		}
		seen[w.Name] = true
	}

	_, err = p.PlayMode()
	if err != nil {
		return Program{}, err
	}
	return p, nil
}

func mask(gpios []int) (uint32, error) {
	var m uint32
	for _, gpio := range gpios {
		if gpio < 0 || gpio > 31 {
			return 0, errors.Newf("GPIO %d out of range [0, 31]", gpio)
		}
		m |= 1 << gpio
	}
	return m, nil
}

// Train converts the wave's pulses
func (w WaveSpec) Train() ([]wave.Pulse, error) {
	pulses := make([]wave.Pulse, len(w.Pulses))
	for i, spec := range w.Pulses {
		on, err := mask(spec.On)
		if err != nil {
			return nil, errors.Wrapf(err, "wave %q pulse %d", w.Name, i)
		}
		off, err := mask(spec.Off)
		if err != nil {
			return nil, errors.Wrapf(err, "wave %q pulse %d", w.Name, i)
		}

		pulses[i] = wave.Pulse{On: on, Off: off, Delay: spec.Delay}
		if spec.SampleLevels {
			pulses[i].Flags |= wave.FlagSampleLevels
		}
		if spec.SampleTick {
			pulses[i].Flags |= wave.FlagSampleTick
		}
	}
	return pulses, nil
}

// PlayMode returns the mode the first wave is played in when there is no chain
func (p Program) PlayMode() (wave.Mode, error) {
	switch p.Mode {
	case "", "oneshot":
		return wave.ModeOneShot, nil
	case "repeat":
		return wave.ModeRepeat, nil
	}
	return wave.ModeOneShot, errors.Newf("unknown mode %q", p.Mode)
}

// Ops converts the chain, resolving wave names through ids
func (p Program) Ops(ids map[string]int) ([]wave.Op, error) {
	ops := make([]wave.Op, 0, len(p.Chain))
	for i, spec := range p.Chain {
		switch spec.Op {
		case "play":
			id, ok := ids[spec.Wave]
			if !ok {
				return nil, errors.Newf("chain command %d plays unknown wave %q", i, spec.Wave)
			}
			ops = append(ops, wave.PlayWave(id))
		case "delay":
			ops = append(ops, wave.Delay(spec.Micros))
		case "loop":
			ops = append(ops, wave.LoopBegin())
		case "end":
			ops = append(ops, wave.LoopEnd(spec.Count))
		case "forever":
			ops = append(ops, wave.RepeatForever())
		default:
			return nil, errors.Newf("chain command %d is unknown op %q", i, spec.Op)
		}
	}
	return ops, nil
}
