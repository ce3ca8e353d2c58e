package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/memutils"
)

// ControlBlockWords is the size of one DMA control block in 32-bit words
const ControlBlockWords = 8

// CarrierLayout is the content of one carrier page, in order
type CarrierLayout struct {
	CBs    int
	Levels int
	Off    int
	Ticks  int
	On     int
	Pad    int
}

// WaveLayout is the content of one wave page: descriptors, then out-of-line words, then the
// page's periph data word
type WaveLayout struct {
	CBs int
	OOL int
}

// ChainLayout describes how the first Pages wave pages are reused for chain programs. Each such
// page holds CountersPerPage counters, then CBsPerPage chain descriptors, then one scratch word per
// chain descriptor, then the value rings of its counters.
type ChainLayout struct {
	Pages           int
	CBsPerPage      int
	CountersPerPage int
	CounterRadix    int
	CounterDigits   int
}

// CounterCBs is the number of descriptors one counter needs: three per digit plus a reset
func (l ChainLayout) CounterCBs() int {
	return 3*l.CounterDigits + 1
}

// CounterValues is the number of words in one copy of a counter's rings
func (l ChainLayout) CounterValues() int {
	return (l.CounterRadix + 1) * l.CounterDigits
}

// Layout places descriptors and words in bus memory pages. Every count is configuration; the
// defaults fill a 4096-byte page.
type Layout struct {
	PageSize      int
	PagesPerBlock int
	CarrierBlocks int
	WaveBlocks    int

	Carrier CarrierLayout
	Wave    WaveLayout
	Chain   ChainLayout
}

func DefaultLayout() Layout {
	return Layout{
		PageSize:      4096,
		PagesPerBlock: 53,
		CarrierBlocks: 20,
		WaveBlocks:    4,
		Carrier: CarrierLayout{
			CBs:    117,
			Levels: 38,
			Off:    38,
			Ticks:  2,
			On:     2,
			Pad:    7,
		},
		Wave: WaveLayout{
			CBs: 118,
			OOL: 79,
		},
		Chain: ChainLayout{
			Pages:           4,
			CBsPerPage:      60,
			CountersPerPage: 2,
			CounterRadix:    16,
			CounterDigits:   4,
		},
	}
}

func (l Layout) pageWords() int {
	return l.PageSize / 4
}

func (l Layout) carrierLevelWord() int { return l.Carrier.CBs * ControlBlockWords }
func (l Layout) carrierOffWord() int   { return l.carrierLevelWord() + l.Carrier.Levels }
func (l Layout) carrierTickWord() int  { return l.carrierOffWord() + l.Carrier.Off }
func (l Layout) carrierOnWord() int    { return l.carrierTickWord() + l.Carrier.Ticks }
func (l Layout) carrierDataWord() int  { return l.carrierOnWord() + l.Carrier.On }

func (l Layout) waveOOLWord() int  { return l.Wave.CBs * ControlBlockWords }
func (l Layout) waveDataWord() int { return l.waveOOLWord() + l.Wave.OOL }

func (l Layout) chainCBSlot() int {
	return l.Chain.CountersPerPage * l.Chain.CounterCBs()
}

func (l Layout) chainValueWord() int {
	return (l.chainCBSlot() + l.Chain.CBsPerPage) * ControlBlockWords
}

func (l Layout) counterValueWord() int {
	return l.chainValueWord() + l.Chain.CBsPerPage
}

// Words of a counter: the live rings followed by their pristine copy
func (l Layout) counterWords() int {
	return 2 * l.Chain.CounterValues()
}

// Validate checks that every page map fits in a page
func (l Layout) Validate() error {
	err := memutils.CheckPow2(l.PageSize, "PageSize")
	if err != nil {
		return err
	}
	if l.PageSize < 4*ControlBlockWords {
		return errors.Newf("page size %d cannot hold a control block", l.PageSize)
	}
	if l.PagesPerBlock < 1 || l.CarrierBlocks < 0 || l.WaveBlocks < 1 {
		return errors.Newf("invalid block counts: %d pages per block, %d carrier blocks, %d wave blocks",
			l.PagesPerBlock, l.CarrierBlocks, l.WaveBlocks)
	}

	c := l.Carrier
	if c.CBs < 1 || c.Levels < 0 || c.Off < 0 || c.Ticks < 0 || c.On < 0 || c.Pad < 0 {
		return errors.Newf("invalid carrier page %+v", c)
	}
	if used := l.carrierDataWord() + 1 + c.Pad; used > l.pageWords() {
		return errors.Newf("carrier page needs %d words, a page holds %d", used, l.pageWords())
	}

	w := l.Wave
	if w.CBs < 1 || w.OOL < 0 {
		return errors.Newf("invalid wave page %+v", w)
	}
	if used := l.waveDataWord() + 1; used > l.pageWords() {
		return errors.Newf("wave page needs %d words, a page holds %d", used, l.pageWords())
	}

	ch := l.Chain
	if ch.Pages < 1 || ch.CBsPerPage < 1 || ch.CountersPerPage < 0 {
		return errors.Newf("invalid chain layout %+v", ch)
	}
	if ch.CounterRadix < 2 || ch.CounterDigits < 1 {
		return errors.Newf("counters need a radix of at least 2 and at least one digit, got %d and %d",
			ch.CounterRadix, ch.CounterDigits)
	}
	if l.chainCBSlot()+ch.CBsPerPage > w.CBs {
		return errors.Newf("chain page needs %d descriptors, a wave page holds %d", l.chainCBSlot()+ch.CBsPerPage, w.CBs)
	}
	if used := l.counterValueWord() + ch.CountersPerPage*l.counterWords(); used > l.waveDataWord() {
		return errors.Newf("chain page needs %d words before the periph data word at %d", used, l.waveDataWord())
	}
	if ch.Pages > l.WaveBlocks*l.PagesPerBlock {
		return errors.Newf("%d chain pages do not fit in %d wave pages", ch.Pages, l.WaveBlocks*l.PagesPerBlock)
	}

	return nil
}
