package wave

import (
	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/memutils/metadata"
	"github.com/wavedma/wavedma/periph"
)

// OpCode identifies a chain program instruction
type OpCode int32

const (
	OpPlayWave OpCode = iota
	OpDelay
	OpLoopBegin
	OpLoopEnd
	OpRepeatForever
)

var opCodeMapping = map[OpCode]string{
	OpPlayWave:      "PlayWave",
	OpDelay:         "Delay",
	OpLoopBegin:     "LoopBegin",
	OpLoopEnd:       "LoopEnd",
	OpRepeatForever: "RepeatForever",
}

func (c OpCode) String() string {
	name, ok := opCodeMapping[c]
	if !ok {
		return "Unknown"
	}
	return name
}

// Op is one chain program instruction. Arg is the wave id of OpPlayWave, the microseconds of
// OpDelay and the loop count of OpLoopEnd.
type Op struct {
	Code OpCode
	Arg  int
}

// PlayWave plays wave id once, without its lead-in
func PlayWave(id int) Op { return Op{Code: OpPlayWave, Arg: id} }

// Delay waits micros microseconds. Zero waits nothing.
func Delay(micros int) Op { return Op{Code: OpDelay, Arg: micros} }

// LoopBegin opens a loop closed by the next unmatched LoopEnd
func LoopBegin() Op { return Op{Code: OpLoopBegin} }

// LoopEnd runs the body of the innermost open loop count times in total
func LoopEnd(count int) Op { return Op{Code: OpLoopEnd, Arg: count} }

// RepeatForever runs the outermost open loop, or the whole program, until the channel is stopped.
// It must be the last command.
func RepeatForever() Op { return Op{Code: OpRepeatForever} }

// ChainInfo describes a submitted chain program
type ChainInfo struct {
	ControlBlocks int
	Counters      int
}

type nodeKind int

const (
	nodeDelay nodeKind = iota
	nodePlay
	nodeCounter
	nodeJump
	nodeEnd
)

// chainNode is one planned chain control block. Targets are chain positions until the plan is
// written out.
type chainNode struct {
	kind   nodeKind
	micros int
	wave   metadata.Entry

	counter int
	count   int
	target  int
}

type openLoop struct {
	start    int
	counters int
}

type chainPlan struct {
	nodes    []chainNode
	counters int
}

// plan checks a chain program against the waves and the chain pages without writing anything
func (e *Engine) plan(program []Op) (chainPlan, error) {
	var plan chainPlan
	var loops []openLoop

	plan.nodes = append(plan.nodes, chainNode{kind: nodeDelay, micros: e.options.LeadInMicros})

	for index, op := range program {
		switch op.Code {
		case OpPlayWave:
			entry, err := e.liveEntry(op.Arg)
			if err != nil {
				return chainPlan{}, errors.Wrapf(err, "chain command %d", index)
			}
			plan.nodes = append(plan.nodes, chainNode{kind: nodePlay, wave: entry})

		case OpDelay:
			if op.Arg < 0 || op.Arg > e.options.MaxChainDelay {
				return chainPlan{}, errors.Wrapf(ErrBadChainDelay, "chain command %d waits %d microseconds, limit is %d",
					index, op.Arg, e.options.MaxChainDelay)
			}
			if op.Arg > 0 {
				plan.nodes = append(plan.nodes, chainNode{kind: nodeDelay, micros: op.Arg})
			}

		case OpLoopBegin:
			if len(loops) >= e.options.MaxChainNesting {
				return chainPlan{}, errors.Wrapf(ErrChainNesting, "chain command %d opens loop %d, limit is %d",
					index, len(loops)+1, e.options.MaxChainNesting)
			}
			loops = append(loops, openLoop{start: len(plan.nodes), counters: plan.counters})

		case OpLoopEnd:
			if op.Arg < 0 || op.Arg > e.options.MaxLoopCount {
				return chainPlan{}, errors.Wrapf(ErrChainLoopCount, "chain command %d loops %d times, limit is %d",
					index, op.Arg, e.options.MaxLoopCount)
			}
			if len(loops) == 0 {
				return chainPlan{}, errors.Wrapf(ErrBadLoop, "chain command %d ends a loop that was never opened", index)
			}

			loop := loops[len(loops)-1]
			loops = loops[:len(loops)-1]
			if loop.start == len(plan.nodes) {
				return chainPlan{}, errors.Wrapf(ErrBadLoop, "chain command %d ends an empty loop", index)
			}

			switch {
			case op.Arg == 0:
				// The body is dropped, counters it used included
				plan.nodes = plan.nodes[:loop.start]
				plan.counters = loop.counters
			case op.Arg >= 2:
				if plan.counters >= e.arena.CounterCapacity() {
					return chainPlan{}, errors.Wrapf(ErrChainCounter, "chain command %d needs counter %d, limit is %d",
						index, plan.counters+1, e.arena.CounterCapacity())
				}
				plan.nodes = append(plan.nodes, chainNode{
					kind:    nodeCounter,
					counter: plan.counters,
					count:   op.Arg,
					target:  loop.start,
				})
				plan.counters++
			}

		case OpRepeatForever:
			if index != len(program)-1 {
				return chainPlan{}, errors.Wrapf(ErrMustBeLast, "chain command %d of %d", index, len(program))
			}

			// Repeat from the outermost open loop, or from the top of the program
			start := 1
			if len(loops) > 0 {
				start = loops[0].start
			}
			loops = nil

			if start == len(plan.nodes) {
				return chainPlan{}, errors.Wrapf(ErrBadLoop, "chain command %d repeats nothing", index)
			}
			plan.nodes = append(plan.nodes, chainNode{kind: nodeJump, target: start})

		default:
			return chainPlan{}, errors.Wrapf(ErrBadChainOp, "chain command %d has code %d", index, op.Code)
		}
	}

	if len(loops) > 0 {
		return chainPlan{}, errors.Wrapf(ErrBadLoop, "%d loops are never closed", len(loops))
	}

	plan.nodes = append(plan.nodes, chainNode{kind: nodeEnd})
	if len(plan.nodes) > e.arena.ChainCapacity() {
		return chainPlan{}, errors.Wrapf(ErrChainTooBig, "%d control blocks, limit is %d", len(plan.nodes), e.arena.ChainCapacity())
	}

	return plan, nil
}

// Submit replaces whatever the secondary channel is doing with a chain program. The program is
// checked completely before any register is touched; a rejected program leaves the running
// transmission alone.
func (e *Engine) Submit(program []Op) (ChainInfo, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	plan, err := e.plan(program)
	if err != nil {
		return ChainInfo{}, err
	}

	err = e.startPacer()
	if err != nil {
		return ChainInfo{}, err
	}

	// The channel may be running the previous program out of the same pages
	e.regs.ResetDMA(e.options.Channel)
	e.writePlan(plan)
	e.regs.StartDMA(e.options.Channel, e.arena.ChainCB(0).Bus)

	return ChainInfo{
		ControlBlocks: len(plan.nodes),
		Counters:      plan.counters,
	}, nil
}

// writePlan writes counters and scratch words first, then the chain blocks that read them
func (e *Engine) writePlan(plan chainPlan) {
	periphData := e.arena.WavePeriphData().Bus
	chainBus := func(n int) uint32 { return e.arena.ChainCB(n).Bus }

	for n, node := range plan.nodes {
		switch node.kind {
		case nodeCounter:
			e.writeCounter(node.counter, node.count-1, chainBus(node.target), chainBus(n+1))
		case nodePlay:
			e.arena.ChainValue(n).Store(chainBus(n + 1))
		}
	}

	for n, node := range plan.nodes {
		block := arena.ControlBlock{
			Info:   periph.NormalDMA,
			Source: periphData,
			Dest:   periphData,
			Length: 4,
		}

		switch node.kind {
		case nodeDelay:
			block = e.delayBlock(node.micros)
			block.Next = chainBus(n + 1)
		case nodePlay:
			// Point the wave's last block back into the chain, then run the wave without its lead-in
			block.Source = e.arena.ChainValue(n).Bus
			block.Dest = e.arena.WaveCB(node.wave.TopCB()).NextBus()
			block.Next = chainBus(n + 1)
			if node.wave.CBs > 1 {
				block.Next = e.arena.WaveCB(node.wave.BottomCB + 1).Bus
			}
		case nodeCounter:
			block.Next = e.arena.CounterCB(node.counter, 0).Bus
		case nodeJump:
			block.Next = chainBus(node.target)
		case nodeEnd:
			block.Next = 0
		}

		e.arena.ChainCB(n).Write(block)
	}
}

// writeCounter builds counter c so that the first count visits jump to repeat and the one after
// leaves to next, restoring the counter on the way out.
//
// Each digit is a ring of radix+1 words in radix base. Visiting a digit copies the bottom of its
// ring into the next field of the digit's jump block, rotates the ring down by one and jumps.
// A ring holds repeat everywhere except at its top, where the carry into the following digit
// lives, and at the digit's value, where the carry also lives unless this is the most significant
// nonzero digit, which holds the exit instead. The exit restores every ring from its copy.
func (e *Engine) writeCounter(c, count int, repeat, next uint32) {
	layout := e.arena.Layout().Chain
	radix, digits := layout.CounterRadix, layout.CounterDigits
	ring := radix + 1
	values := ring * digits

	value := func(i int) arena.Word { return e.arena.CounterValue(c, i) }
	block := func(k int) arena.CB { return e.arena.CounterCB(c, k) }
	exit := block(3 * digits)

	for i := 0; i < values; i++ {
		value(i).Store(repeat)
	}
	for b := 0; b < digits; b++ {
		value(b*ring + radix).Store(block(3*b + 3).Bus)
	}

	for b := 0; b < digits && count > 0; b++ {
		digit := count % radix
		count /= radix

		target := exit.Bus
		if count > 0 {
			target = value(b*ring + radix).Load()
		}
		value(b*ring + digit).Store(target)
	}

	for i := 0; i < values; i++ {
		value(values + i).Store(value(i).Load())
	}

	for b := 0; b < digits; b++ {
		bottom, top := value(b*ring), value(b*ring+radix)
		jump := block(3*b + 2)

		block(3 * b).Write(arena.ControlBlock{
			Info:   periph.NormalDMA,
			Source: bottom.Bus,
			Dest:   jump.NextBus(),
			Length: 4,
			Next:   block(3*b + 1).Bus,
		})
		block(3*b + 1).Write(arena.ControlBlock{
			Info:   periph.NormalDMA,
			Source: bottom.Bus,
			Dest:   top.Bus,
			Length: 4,
			Next:   jump.Bus,
		})
		jump.Write(arena.ControlBlock{
			Info:   periph.NormalDMA | periph.TISrcInc | periph.TIDestInc,
			Source: value(b*ring + 1).Bus,
			Dest:   bottom.Bus,
			Length: uint32(4 * radix),
			Next:   repeat,
		})
	}

	exit.Write(arena.ControlBlock{
		Info:   periph.NormalDMA | periph.TISrcInc | periph.TIDestInc,
		Source: value(values).Bus,
		Dest:   value(0).Bus,
		Length: uint32(4 * values),
		Next:   next,
	})
}
