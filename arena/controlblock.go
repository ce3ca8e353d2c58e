package arena

import (
	"sync/atomic"
	"unsafe"
)

const (
	cbInfo = iota
	cbSource
	cbDest
	cbLength
	cbStride
	cbNext
	cbReserved0
	cbReserved1
)

// NextFieldOffset is the byte offset of the next field inside a control block
const NextFieldOffset = cbNext * 4

// ControlBlock is the content of one DMA control block. Next is always a bus address, 0 ends the
// chain.
type ControlBlock struct {
	Info   uint32
	Source uint32
	Dest   uint32
	Length uint32
	Stride uint32
	Next   uint32
}

// Word is one 32-bit cell of the arena. Every access is a single atomic bus transaction.
type Word struct {
	ptr *uint32
	Bus uint32
}

func newWord(mem []byte, bus uint32, word int) Word {
	return Word{
		ptr: (*uint32)(unsafe.Pointer(&mem[word*4])),
		Bus: bus + uint32(word*4),
	}
}

// Ptr returns the process view of the word
func (w Word) Ptr() *uint32 { return w.ptr }

func (w Word) Load() uint32 {
	return atomic.LoadUint32(w.ptr)
}

func (w Word) Store(value uint32) {
	atomic.StoreUint32(w.ptr, value)
}

// Or sets the bits of mask without disturbing any other bit
func (w Word) Or(mask uint32) {
	for {
		old := atomic.LoadUint32(w.ptr)
		if old&mask == mask || atomic.CompareAndSwapUint32(w.ptr, old, old|mask) {
			return
		}
	}
}

// AndNot clears the bits of mask without disturbing any other bit
func (w Word) AndNot(mask uint32) {
	for {
		old := atomic.LoadUint32(w.ptr)
		if old&mask == 0 || atomic.CompareAndSwapUint32(w.ptr, old, old&^mask) {
			return
		}
	}
}

// CB is one control block slot of the arena
type CB struct {
	words *[ControlBlockWords]uint32
	Bus   uint32
}

func newCB(mem []byte, bus uint32, slot int) CB {
	offset := slot * ControlBlockWords * 4
	return CB{
		words: (*[ControlBlockWords]uint32)(unsafe.Pointer(&mem[offset])),
		Bus:   bus + uint32(offset),
	}
}

// Write stores every field of the control block. Next is stored last so a running engine never
// follows a pointer out of a half-written block.
func (c CB) Write(block ControlBlock) {
	atomic.StoreUint32(&c.words[cbInfo], block.Info)
	atomic.StoreUint32(&c.words[cbSource], block.Source)
	atomic.StoreUint32(&c.words[cbDest], block.Dest)
	atomic.StoreUint32(&c.words[cbLength], block.Length)
	atomic.StoreUint32(&c.words[cbStride], block.Stride)
	atomic.StoreUint32(&c.words[cbReserved0], 0)
	atomic.StoreUint32(&c.words[cbReserved1], 0)
	atomic.StoreUint32(&c.words[cbNext], block.Next)
}

func (c CB) Read() ControlBlock {
	return ControlBlock{
		Info:   atomic.LoadUint32(&c.words[cbInfo]),
		Source: atomic.LoadUint32(&c.words[cbSource]),
		Dest:   atomic.LoadUint32(&c.words[cbDest]),
		Length: atomic.LoadUint32(&c.words[cbLength]),
		Stride: atomic.LoadUint32(&c.words[cbStride]),
		Next:   atomic.LoadUint32(&c.words[cbNext]),
	}
}

func (c CB) SetNext(bus uint32) {
	atomic.StoreUint32(&c.words[cbNext], bus)
}

func (c CB) Next() uint32 {
	return atomic.LoadUint32(&c.words[cbNext])
}

// NextBus is the bus address of the block's next field, for descriptors that rewrite it
func (c CB) NextBus() uint32 {
	return c.Bus + NextFieldOffset
}
