package wave_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/internal/dmasim"
	"github.com/wavedma/wavedma/periph/mock_periph"
	"github.com/wavedma/wavedma/wave"
	"go.uber.org/mock/gomock"
)

// bodyBus is the first block a chain runs when it plays a wave
func bodyBus(t *testing.T, a *arena.Arena, engine *wave.Engine, id int) uint32 {
	info, ok := engine.Info(id)
	require.True(t, ok)
	return a.WaveCB(info.BottomCB + 1).Bus
}

func runToEnd(t *testing.T, m *dmasim.Machine, engine *wave.Engine) {
	_, err := m.Run(engine.Channel(), 1000000)
	require.NoError(t, err)
	require.False(t, engine.Busy())
}

func TestChainLoopCounts(t *testing.T) {
	a, m, engine := newSimEngine(t, wave.CreateOptions{})
	id := create(t, engine, wave.Pulse{On: 1, Delay: 2}, wave.Pulse{Off: 1, Delay: 1})

	for _, count := range []int{0, 1, 2, 3, 15, 16, 17, 255, 256, 300, 4097} {
		info, err := engine.Submit([]wave.Op{wave.LoopBegin(), wave.PlayWave(id), wave.LoopEnd(count)})
		require.NoError(t, err)

		counters := 0
		if count >= 2 {
			counters = 1
		}
		require.Equal(t, counters, info.Counters, "count %d", count)

		before := m.Now()
		runToEnd(t, m, engine)
		require.Equal(t, count, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, id)), "count %d", count)
		require.Equal(t, uint32(20+3*count), m.Now()-before, "count %d", count)

		// Counters restore themselves, so the same program runs the same way again
		m.StartDMA(engine.Channel(), a.ChainCB(0).Bus)
		runToEnd(t, m, engine)
		require.Equal(t, count, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, id)), "rerun count %d", count)
	}
}

func TestChainLayout(t *testing.T) {
	a, m, engine := newSimEngine(t, wave.CreateOptions{})
	first := create(t, engine, wave.Pulse{On: 1, Delay: 10})
	second := create(t, engine, wave.Pulse{On: 2, Delay: 10})

	info, err := engine.Submit([]wave.Op{
		wave.PlayWave(first),
		wave.Delay(0),
		wave.Delay(100),
		wave.PlayWave(second),
		wave.PlayWave(first),
	})
	require.NoError(t, err)
	require.Equal(t, wave.ChainInfo{ControlBlocks: 6}, info)
	require.Equal(t, a.ChainCB(0).Bus, m.DMAControlBlock(engine.Channel()))

	lead := a.ChainCB(0).Read()
	require.Equal(t, uint32(80), lead.Length)
	require.Equal(t, a.ChainCB(1).Bus, lead.Next)

	// Playing a wave patches where it returns to and skips its lead-in
	play := a.ChainCB(1).Read()
	require.Equal(t, a.ChainValue(1).Bus, play.Source)
	require.Equal(t, a.ChainCB(2).Bus, a.ChainValue(1).Load())
	require.Equal(t, bodyBus(t, a, engine, first), play.Next)

	require.Equal(t, uint32(400), a.ChainCB(2).Read().Length)
	require.Zero(t, a.ChainCB(5).Read().Next)

	// The stored waves are only patched at run time
	firstBlocks, err := engine.Dump(first)
	require.NoError(t, err)
	require.Zero(t, firstBlocks[len(firstBlocks)-1].Next)

	runToEnd(t, m, engine)
	require.Equal(t, 2, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, first)))
	require.Equal(t, 1, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, second)))
	require.Equal(t, uint32(3), m.Level())
}

func TestChainNestedLoops(t *testing.T) {
	a, m, engine := newSimEngine(t, wave.CreateOptions{})
	outer := create(t, engine, wave.Pulse{On: 1, Delay: 1})
	inner := create(t, engine, wave.Pulse{Off: 1, Delay: 1})

	info, err := engine.Submit([]wave.Op{
		wave.LoopBegin(),
		wave.PlayWave(outer),
		wave.LoopBegin(),
		wave.PlayWave(inner),
		wave.LoopEnd(3),
		wave.LoopEnd(4),
	})
	require.NoError(t, err)
	require.Equal(t, 2, info.Counters)

	runToEnd(t, m, engine)
	require.Equal(t, 4, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, outer)))
	require.Equal(t, 12, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, inner)))
}

func TestChainSkippedLoop(t *testing.T) {
	a, m, engine := newSimEngine(t, wave.CreateOptions{})
	skipped := create(t, engine, wave.Pulse{On: 1, Delay: 1})
	played := create(t, engine, wave.Pulse{On: 2, Delay: 1})

	info, err := engine.Submit([]wave.Op{
		wave.LoopBegin(),
		wave.PlayWave(skipped),
		wave.LoopBegin(),
		wave.PlayWave(skipped),
		wave.LoopEnd(5),
		wave.LoopEnd(0),
		wave.PlayWave(played),
	})
	require.NoError(t, err)
	require.Equal(t, wave.ChainInfo{ControlBlocks: 3}, info)

	runToEnd(t, m, engine)
	require.Zero(t, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, skipped)))
	require.Equal(t, 1, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, played)))
}

func TestChainRepeatForever(t *testing.T) {
	a, m, engine := newSimEngine(t, wave.CreateOptions{})
	w := create(t, engine, wave.Pulse{On: 1, Delay: 1})
	w2 := create(t, engine, wave.Pulse{Off: 1, Delay: 1})

	_, err := engine.Submit([]wave.Op{
		wave.PlayWave(w), wave.LoopBegin(), wave.PlayWave(w2), wave.LoopEnd(5), wave.RepeatForever(), wave.Delay(10),
	})
	require.True(t, errors.Is(err, wave.ErrMustBeLast))
	require.False(t, engine.Busy())

	info, err := engine.Submit([]wave.Op{
		wave.PlayWave(w), wave.LoopBegin(), wave.PlayWave(w2), wave.LoopEnd(5), wave.RepeatForever(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, info.Counters)

	_, err = m.Run(engine.Channel(), 5000)
	require.NoError(t, err)
	require.True(t, engine.Busy())

	passes := m.VisitCount(engine.Channel(), bodyBus(t, a, engine, w))
	require.Greater(t, passes, 10)
	inner := m.VisitCount(engine.Channel(), bodyBus(t, a, engine, w2))
	require.LessOrEqual(t, 5*(passes-1), inner)
	require.LessOrEqual(t, inner, 5*passes)

	// The lead-in runs once
	require.Equal(t, 1, m.VisitCount(engine.Channel(), a.ChainCB(0).Bus))
}

func TestChainRepeatForeverClosesOutermostLoop(t *testing.T) {
	a, m, engine := newSimEngine(t, wave.CreateOptions{})
	once := create(t, engine, wave.Pulse{On: 1, Delay: 1})
	outer := create(t, engine, wave.Pulse{On: 2, Delay: 1})
	inner := create(t, engine, wave.Pulse{On: 4, Delay: 1})

	_, err := engine.Submit([]wave.Op{
		wave.PlayWave(once),
		wave.LoopBegin(),
		wave.PlayWave(outer),
		wave.LoopBegin(),
		wave.PlayWave(inner),
		wave.RepeatForever(),
	})
	require.NoError(t, err)

	_, err = m.Run(engine.Channel(), 1000)
	require.NoError(t, err)
	require.True(t, engine.Busy())

	require.Equal(t, 1, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, once)))
	passes := m.VisitCount(engine.Channel(), bodyBus(t, a, engine, outer))
	require.Greater(t, passes, 10)
	require.InDelta(t, passes, m.VisitCount(engine.Channel(), bodyBus(t, a, engine, inner)), 1)
}

func TestChainRejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger, a := newArena(t)

	// Nothing may reach the registers
	regs := mock_periph.NewMockRegisters(ctrl)
	engine, err := wave.New(logger, a, regs, wave.CreateOptions{MaxChainNesting: 2, MaxLoopCount: 1000, MaxChainDelay: 500})
	require.NoError(t, err)

	w := create(t, engine, wave.Pulse{On: 1, Delay: 1})
	deleted := create(t, engine, wave.Pulse{On: 2, Delay: 1})
	require.NoError(t, engine.Delete(deleted))

	tooBig := make([]wave.Op, a.ChainCapacity()-1)
	for i := range tooBig {
		tooBig[i] = wave.PlayWave(w)
	}

	counted := func(n int) []wave.Op {
		var program []wave.Op
		for i := 0; i < n; i++ {
			program = append(program, wave.LoopBegin(), wave.PlayWave(w), wave.LoopEnd(2))
		}
		return program
	}

	for _, test := range []struct {
		name    string
		program []wave.Op
		err     error
	}{
		{"unknown wave", []wave.Op{wave.PlayWave(w + 10)}, wave.ErrBadWaveID},
		{"deleted wave", []wave.Op{wave.PlayWave(deleted)}, wave.ErrBadWaveID},
		{"negative delay", []wave.Op{wave.Delay(-1)}, wave.ErrBadChainDelay},
		{"long delay", []wave.Op{wave.Delay(501)}, wave.ErrBadChainDelay},
		{"unmatched end", []wave.Op{wave.PlayWave(w), wave.LoopEnd(2)}, wave.ErrBadLoop},
		{"unclosed loop", []wave.Op{wave.LoopBegin(), wave.PlayWave(w)}, wave.ErrBadLoop},
		{"empty loop", []wave.Op{wave.LoopBegin(), wave.LoopEnd(2)}, wave.ErrBadLoop},
		{"empty repeat", []wave.Op{wave.PlayWave(w), wave.LoopBegin(), wave.RepeatForever()}, wave.ErrBadLoop},
		{"nothing to repeat", []wave.Op{wave.RepeatForever()}, wave.ErrBadLoop},
		{"too deep", []wave.Op{wave.LoopBegin(), wave.LoopBegin(), wave.LoopBegin()}, wave.ErrChainNesting},
		{"negative count", []wave.Op{wave.LoopBegin(), wave.PlayWave(w), wave.LoopEnd(-1)}, wave.ErrChainLoopCount},
		{"large count", []wave.Op{wave.LoopBegin(), wave.PlayWave(w), wave.LoopEnd(1001)}, wave.ErrChainLoopCount},
		{"too many counters", counted(a.CounterCapacity() + 1), wave.ErrChainCounter},
		{"not last", []wave.Op{wave.PlayWave(w), wave.RepeatForever(), wave.PlayWave(w)}, wave.ErrMustBeLast},
		{"unknown command", []wave.Op{{Code: wave.OpCode(42)}}, wave.ErrBadChainOp},
		{"too big", tooBig, wave.ErrChainTooBig},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := engine.Submit(test.program)
			require.True(t, errors.Is(err, test.err), "%+v", err)
		})
	}

	// Exactly full fits
	regs.EXPECT().StopHardwarePWM()
	regs.EXPECT().StartPacer(engine.Pacer(), 1).Return(nil)
	regs.EXPECT().ResetDMA(engine.Channel())
	regs.EXPECT().StartDMA(engine.Channel(), a.ChainCB(0).Bus)

	info, err := engine.Submit(tooBig[1:])
	require.NoError(t, err)
	require.Equal(t, a.ChainCapacity(), info.ControlBlocks)
}
