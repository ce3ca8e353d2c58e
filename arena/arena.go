package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/wavedma/wavedma/busmem"
)

// Arena lays descriptors and out-of-line words over the pages of a set of bus memory blocks. The
// first CarrierBlocks*PagesPerBlock pages are carrier pages, the rest are wave pages.
//
// Every position converts to both a process pointer and a bus address by arithmetic on the page
// table. Descriptors only ever hold bus addresses.
type Arena struct {
	layout Layout
	pages  []busmem.Page

	carrierPages int
	wavePages    int

	pageMask uint32
	byBus    *swiss.Map[uint32, int]
}

// New builds an arena over blocks, which must hold exactly CarrierBlocks+WaveBlocks blocks of
// PagesPerBlock pages each
func New(blocks []*busmem.Block, layout Layout) (*Arena, error) {
	err := layout.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid arena layout")
	}

	if len(blocks) != layout.CarrierBlocks+layout.WaveBlocks {
		return nil, errors.Newf("layout needs %d blocks, got %d", layout.CarrierBlocks+layout.WaveBlocks, len(blocks))
	}

	a := &Arena{
		layout:       layout,
		pages:        make([]busmem.Page, 0, len(blocks)*layout.PagesPerBlock),
		carrierPages: layout.CarrierBlocks * layout.PagesPerBlock,
		wavePages:    layout.WaveBlocks * layout.PagesPerBlock,
		pageMask:     ^uint32(layout.PageSize - 1),
		byBus:        swiss.NewMap[uint32, int](uint32(len(blocks) * layout.PagesPerBlock)),
	}

	for blockIndex, block := range blocks {
		if len(block.Pages) != layout.PagesPerBlock {
			return nil, errors.Newf("block %d has %d pages, layout needs %d", blockIndex, len(block.Pages), layout.PagesPerBlock)
		}

		for _, page := range block.Pages {
			if len(page.Mem) != layout.PageSize {
				return nil, errors.Newf("block %d has a page of %d bytes, layout needs %d", blockIndex, len(page.Mem), layout.PageSize)
			}
			if page.Bus&^a.pageMask != 0 {
				return nil, errors.Newf("page at bus %#x is not page aligned", page.Bus)
			}
			if _, dup := a.byBus.Get(page.Bus); dup {
				return nil, errors.Newf("bus page %#x appears twice", page.Bus)
			}

			a.byBus.Put(page.Bus, len(a.pages))
			a.pages = append(a.pages, page)
		}
	}

	return a, nil
}

func (a *Arena) Layout() Layout { return a.layout }

// CarrierPages returns the number of pages reserved for the carrier
func (a *Arena) CarrierPages() int { return a.carrierPages }

// WavePages returns the number of pages reserved for waves and chains
func (a *Arena) WavePages() int { return a.wavePages }

func (a *Arena) carrierPage(page int) busmem.Page {
	if page < 0 || page >= a.carrierPages {
		panic(errors.AssertionFailedf("carrier page %d out of range [0, %d)", page, a.carrierPages))
	}
	return a.pages[page]
}

func (a *Arena) wavePage(page int) busmem.Page {
	if page < 0 || page >= a.wavePages {
		panic(errors.AssertionFailedf("wave page %d out of range [0, %d)", page, a.wavePages))
	}
	return a.pages[a.carrierPages+page]
}

func (a *Arena) carrierWord(index, perPage, base int) Word {
	page := a.carrierPage(index / perPage)
	return newWord(page.Mem, page.Bus, base+index%perPage)
}

// CarrierCBCapacity is the number of carrier control block slots
func (a *Arena) CarrierCBCapacity() int { return a.carrierPages * a.layout.Carrier.CBs }

// CarrierCB returns carrier control block n
func (a *Arena) CarrierCB(n int) CB {
	perPage := a.layout.Carrier.CBs
	page := a.carrierPage(n / perPage)
	return newCB(page.Mem, page.Bus, n%perPage)
}

func (a *Arena) CarrierLevelCapacity() int { return a.carrierPages * a.layout.Carrier.Levels }
func (a *Arena) CarrierOffCapacity() int   { return a.carrierPages * a.layout.Carrier.Off }
func (a *Arena) CarrierTickCapacity() int  { return a.carrierPages * a.layout.Carrier.Ticks }
func (a *Arena) CarrierOnCapacity() int    { return a.carrierPages * a.layout.Carrier.On }

// CarrierLevel returns the cell that level sample n is captured into
func (a *Arena) CarrierLevel(n int) Word {
	return a.carrierWord(n, a.layout.Carrier.Levels, a.layout.carrierLevelWord())
}

// CarrierOff returns entry n of the turn-off table
func (a *Arena) CarrierOff(n int) Word {
	return a.carrierWord(n, a.layout.Carrier.Off, a.layout.carrierOffWord())
}

// CarrierTick returns the cell that tick sample n is captured into
func (a *Arena) CarrierTick(n int) Word {
	return a.carrierWord(n, a.layout.Carrier.Ticks, a.layout.carrierTickWord())
}

// CarrierOn returns entry n of the turn-on table
func (a *Arena) CarrierOn(n int) Word {
	return a.carrierWord(n, a.layout.Carrier.On, a.layout.carrierOnWord())
}

// CarrierPeriphData returns the word a paced carrier delay feeds to the pacer FIFO
func (a *Arena) CarrierPeriphData(page int) Word {
	p := a.carrierPage(page)
	return newWord(p.Mem, p.Bus, a.layout.carrierDataWord())
}

// WaveCBCapacity is the number of wave control block slots, chain pages included
func (a *Arena) WaveCBCapacity() int { return a.wavePages * a.layout.Wave.CBs }

// WaveOOLCapacity is the number of wave out-of-line words, chain pages included
func (a *Arena) WaveOOLCapacity() int { return a.wavePages * a.layout.Wave.OOL }

// WaveCBBase is the first wave control block not used by chain pages
func (a *Arena) WaveCBBase() int { return a.layout.Chain.Pages * a.layout.Wave.CBs }

// WaveOOLBase is the first wave out-of-line word not used by chain pages
func (a *Arena) WaveOOLBase() int { return a.layout.Chain.Pages * a.layout.Wave.OOL }

// WaveCB returns wave control block n
func (a *Arena) WaveCB(n int) CB {
	perPage := a.layout.Wave.CBs
	page := a.wavePage(n / perPage)
	return newCB(page.Mem, page.Bus, n%perPage)
}

// WaveOOL returns wave out-of-line word n
func (a *Arena) WaveOOL(n int) Word {
	perPage := a.layout.Wave.OOL
	page := a.wavePage(n / perPage)
	return newWord(page.Mem, page.Bus, a.layout.waveOOLWord()+n%perPage)
}

// WavePeriphData returns the word paced wave delays feed to the pacer FIFO
func (a *Arena) WavePeriphData() Word {
	page := a.wavePage(0)
	return newWord(page.Mem, page.Bus, a.layout.waveDataWord())
}

// ChainCapacity is the number of chain descriptors a program may use
func (a *Arena) ChainCapacity() int { return a.layout.Chain.Pages * a.layout.Chain.CBsPerPage }

// CounterCapacity is the number of counters a program may use
func (a *Arena) CounterCapacity() int { return a.layout.Chain.Pages * a.layout.Chain.CountersPerPage }

// ChainCBIndex returns the wave control block index of chain descriptor n
func (a *Arena) ChainCBIndex(n int) int {
	perPage := a.layout.Chain.CBsPerPage
	return (n/perPage)*a.layout.Wave.CBs + a.layout.chainCBSlot() + n%perPage
}

// ChainCB returns chain descriptor n
func (a *Arena) ChainCB(n int) CB {
	return a.WaveCB(a.ChainCBIndex(n))
}

// ChainValue returns the scratch word owned by chain descriptor n
func (a *Arena) ChainValue(n int) Word {
	perPage := a.layout.Chain.CBsPerPage
	page := a.wavePage(n / perPage)
	return newWord(page.Mem, page.Bus, a.layout.chainValueWord()+n%perPage)
}

// CounterCB returns descriptor k of counter c
func (a *Arena) CounterCB(c, k int) CB {
	perPage := a.layout.Chain.CountersPerPage
	page := a.wavePage(c / perPage)
	return newCB(page.Mem, page.Bus, (c%perPage)*a.layout.Chain.CounterCBs()+k)
}

// CounterValue returns word i of counter c. The first CounterValues words are the live rings, the
// rest their pristine copy.
func (a *Arena) CounterValue(c, i int) Word {
	perPage := a.layout.Chain.CountersPerPage
	page := a.wavePage(c / perPage)
	return newWord(page.Mem, page.Bus, a.layout.counterValueWord()+(c%perPage)*a.layout.counterWords()+i)
}

// Resolve translates a bus address back to the process view of the word it names
func (a *Arena) Resolve(bus uint32) (*uint32, bool) {
	index, ok := a.byBus.Get(bus & a.pageMask)
	if !ok || bus&3 != 0 {
		return nil, false
	}

	page := a.pages[index]
	return newWord(page.Mem, page.Bus, int(bus&^a.pageMask)/4).ptr, true
}

// ResolveCB translates the bus address of a control block back to the block
func (a *Arena) ResolveCB(bus uint32) (CB, bool) {
	index, ok := a.byBus.Get(bus & a.pageMask)
	offset := int(bus &^ a.pageMask)
	if !ok || offset%(ControlBlockWords*4) != 0 || offset+ControlBlockWords*4 > a.layout.PageSize {
		return CB{}, false
	}

	page := a.pages[index]
	return newCB(page.Mem, page.Bus, offset/(ControlBlockWords*4)), true
}

// CarrierCBIndex returns the carrier control block a bus address points at
func (a *Arena) CarrierCBIndex(bus uint32) (int, bool) {
	page, slot, ok := a.cbSlot(bus, a.layout.Carrier.CBs)
	if !ok || page >= a.carrierPages {
		return -1, false
	}
	return page*a.layout.Carrier.CBs + slot, true
}

// WaveCBIndex returns the wave control block a bus address points at
func (a *Arena) WaveCBIndex(bus uint32) (int, bool) {
	page, slot, ok := a.cbSlot(bus, a.layout.Wave.CBs)
	if !ok || page < a.carrierPages {
		return -1, false
	}
	return (page-a.carrierPages)*a.layout.Wave.CBs + slot, true
}

func (a *Arena) cbSlot(bus uint32, perPage int) (page, slot int, ok bool) {
	page, ok = a.byBus.Get(bus & a.pageMask)
	offset := int(bus &^ a.pageMask)
	if !ok || offset%(ControlBlockWords*4) != 0 {
		return 0, 0, false
	}

	slot = offset / (ControlBlockWords * 4)
	if slot >= perPage {
		return 0, 0, false
	}
	return page, slot, true
}
