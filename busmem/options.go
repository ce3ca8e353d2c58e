package busmem

import (
	"time"

	"github.com/wavedma/wavedma/internal/utils"
)

// MemAllocMode selects how bus memory is obtained
type MemAllocMode int32

const (
	// ModeAuto picks ModePagemap when the buffer horizon is longer than DefaultBufferMillis,
	// ModeMailbox otherwise
	ModeAuto MemAllocMode = iota
	// ModePagemap locks anonymous pages, looks up their frames in /proc/self/pagemap and maps
	// each frame again through /dev/mem
	ModePagemap
	// ModeMailbox asks the VideoCore firmware for locked memory through the mailbox property
	// interface
	ModeMailbox
	// ModeHeap hands out ordinary Go memory with synthetic bus addresses. Nothing but a simulated
	// DMA engine can use it.
	ModeHeap
)

var memAllocModeMapping = map[MemAllocMode]string{
	ModeAuto:    "auto",
	ModePagemap: "pagemap",
	ModeMailbox: "mailbox",
	ModeHeap:    "heap",
}

func (m MemAllocMode) String() string {
	return memAllocModeMapping[m]
}

// ParseMemAllocMode is the inverse of MemAllocMode.String
func ParseMemAllocMode(s string) (MemAllocMode, bool) {
	for mode, name := range memAllocModeMapping {
		if name == s {
			return mode, true
		}
	}

	return ModeAuto, false
}

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized turns off the allocator's internal mutex. The consumer must
	// guarantee the allocator is only used from one goroutine at a time.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	return utils.FlagsToString(f, createFlagsMapping)
}

const (
	DefaultPageSize      = 4096
	DefaultPagesPerBlock = 53
	DefaultBufferMillis  = 120

	// DefaultDramBus is the uncached bus alias of SDRAM on BCM2836 and later
	DefaultDramBus uint32 = 0xC0000000
	// DefaultMemFlag asks the firmware for direct, uncached memory on BCM2836 and later
	DefaultMemFlag uint32 = 0x04

	DefaultRetryAttempts = 10
	DefaultRetryInterval = 50 * time.Millisecond
)

// CreateOptions contains optional settings when creating an allocator. Zero values are replaced
// with the defaults above.
type CreateOptions struct {
	Flags CreateFlags
	Mode  MemAllocMode
	// MaxBlocks is the most blocks that may be live at once. Zero means no limit.
	MaxBlocks     int
	PagesPerBlock int
	PageSize      int
	// BufferMillis is only consulted by ModeAuto
	BufferMillis int
	DramBus      uint32
	MemFlag      uint32

	// RetryAttempts and RetryInterval bound the physical frame lookup of ModePagemap
	RetryAttempts int
	RetryInterval time.Duration
}

func (o *CreateOptions) applyDefaults() {
	if o.PagesPerBlock == 0 {
		o.PagesPerBlock = DefaultPagesPerBlock
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.BufferMillis == 0 {
		o.BufferMillis = DefaultBufferMillis
	}
	if o.DramBus == 0 {
		o.DramBus = DefaultDramBus
	}
	if o.MemFlag == 0 {
		o.MemFlag = DefaultMemFlag
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = DefaultRetryInterval
	}
}

// EffectiveMode resolves ModeAuto the way the allocator will
func (o CreateOptions) EffectiveMode() MemAllocMode {
	if o.Mode != ModeAuto {
		return o.Mode
	}

	bufferMillis := o.BufferMillis
	if bufferMillis == 0 {
		bufferMillis = DefaultBufferMillis
	}

	if bufferMillis > DefaultBufferMillis {
		return ModePagemap
	}
	return ModeMailbox
}
