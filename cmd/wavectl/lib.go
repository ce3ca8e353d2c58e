package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/snksoft/crc"
	"github.com/theckman/yacspin"
	"github.com/wavedma/wavedma"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/config"
	"github.com/wavedma/wavedma/wave"
)

const (
	pollInterval = 50 * time.Millisecond

	// simulated control blocks run per poll and per channel
	simSteps = 4096
)

var crcTable = crc.NewTable(crc.CCITT)

// createWaves compiles every wave of the program and returns their ids by name
func createWaves(s *wavedma.Subsystem, program config.Program) (map[string]int, error) {
	waves := s.Waves()
	ids := make(map[string]int, len(program.Waves))
	for _, spec := range program.Waves {
		train, err := spec.Train()
		if err != nil {
			return nil, err
		}

		waves.AddNew()
		_, err = waves.AddGeneric(train)
		if err != nil {
			return nil, errors.Wrapf(err, "wave %q", spec.Name)
		}

		id, err := waves.Create()
		if err != nil {
			return nil, errors.Wrapf(err, "wave %q", spec.Name)
		}
		ids[spec.Name] = id
	}
	return ids, nil
}

// startProgram submits the chain or, without one, plays the first wave
func startProgram(s *wavedma.Subsystem, program config.Program, ids map[string]int) (string, error) {
	if len(program.Chain) > 0 {
		ops, err := program.Ops(ids)
		if err != nil {
			return "", err
		}

		info, err := s.Waves().Submit(ops)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("chain of %d control blocks and %d counters", info.ControlBlocks, info.Counters), nil
	}

	mode, err := program.PlayMode()
	if err != nil {
		return "", err
	}

	first := program.Waves[0].Name
	cbs, err := s.Waves().Play(ids[first], mode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wave %q (%s) of %d control blocks", first, mode, cbs), nil
}

// stepSimulator advances both simulated channels. It does nothing on hardware.
func stepSimulator(s *wavedma.Subsystem) error {
	m := s.Simulator()
	if m == nil {
		return nil
	}

	_, err := m.Run(s.Carrier().Channel(), simSteps)
	if err != nil {
		return err
	}
	_, err = m.Run(s.Waves().Channel(), simSteps)
	return err
}

func driveSimulator(s *wavedma.Subsystem, stop <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A fault leaves the channel where it was, so it is retried on every tick
			_ = stepSimulator(s)
		}
	}
}

// playProgram starts the program and waits until the secondary channel goes idle or interrupt fires
func playProgram(s *wavedma.Subsystem, program config.Program, spin bool, interrupt <-chan os.Signal) error {
	ids, err := createWaves(s, program)
	if err != nil {
		return err
	}

	what, err := startProgram(s, program, ids)
	if err != nil {
		return err
	}

	var spinner *yacspin.Spinner
	if spin {
		spinner, err = yacspin.New(yacspin.Config{
			Frequency:         100 * time.Millisecond,
			CharSet:           yacspin.CharSets[14],
			Suffix:            " playing",
			SuffixAutoColon:   true,
			Message:           what,
			StopCharacter:     "✓",
			StopMessage:       "done",
			StopFailCharacter: "✗",
			StopFailMessage:   "interrupted",
		})
		if err != nil {
			return errors.Wrap(err, "could not create the spinner")
		}

		err = spinner.Start()
		if err != nil {
			return errors.Wrap(err, "could not start the spinner")
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for s.Waves().Busy() {
		select {
		case <-interrupt:
			s.Waves().Stop()
			if spinner != nil {
				_ = spinner.StopFail()
			}
			return nil
		case <-ticker.C:
			err = stepSimulator(s)
			if err != nil {
				if spinner != nil {
					_ = spinner.StopFail()
				}
				return err
			}
		}
	}

	if spinner != nil {
		return spinner.Stop()
	}
	return nil
}

// fingerprint is the CRC-16/CCITT of the blocks, each field little endian
func fingerprint(blocks []arena.ControlBlock) uint16 {
	buf := make([]byte, 0, 24)
	sum := crcTable.InitCrc()
	for _, cb := range blocks {
		buf = buf[:0]
		for _, field := range []uint32{cb.Info, cb.Source, cb.Dest, cb.Length, cb.Stride, cb.Next} {
			buf = binary.LittleEndian.AppendUint32(buf, field)
		}
		sum = crcTable.UpdateCrc(sum, buf)
	}
	return crcTable.CRC16(sum)
}

// dumpProgram creates the program's waves and prints their control blocks
func dumpProgram(w io.Writer, s *wavedma.Subsystem, program config.Program) error {
	ids, err := createWaves(s, program)
	if err != nil {
		return err
	}

	for _, spec := range program.Waves {
		err = dumpWave(w, s, spec.Name, ids[spec.Name])
		if err != nil {
			return err
		}
	}
	return nil
}

func dumpWave(w io.Writer, s *wavedma.Subsystem, name string, id int) error {
	info, ok := s.Waves().Info(id)
	if !ok || info.Deleted {
		return errors.Wrapf(wave.ErrBadWaveID, "wave %q id %d", name, id)
	}

	blocks, err := s.Waves().Dump(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "wave %q id %d: %d control blocks at [%d, %d], %d bottom words, %d top words, crc %04x\n",
		name, id, info.NumCB, info.BottomCB, info.TopCB, info.NumBottomOOL, info.NumTopOOL, fingerprint(blocks))

	for i, cb := range blocks {
		fmt.Fprintf(w, "  %4d info %08x src %08x dst %08x len %6d next %08x\n",
			info.BottomCB+i, cb.Info, cb.Source, cb.Dest, cb.Length, cb.Next)
	}
	return nil
}
