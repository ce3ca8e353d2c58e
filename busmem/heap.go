package busmem

import "unsafe"

// heapBacking hands out Go memory. Bus addresses are synthetic but unique and page aligned, so a
// simulated engine can translate them back.
type heapBacking struct {
	pageSize int
	dramBus  uint32
	nextPage uint32
}

func newHeapBacking(options CreateOptions) *heapBacking {
	return &heapBacking{
		pageSize: options.PageSize,
		dramBus:  options.DramBus,
		nextPage: 1,
	}
}

func (h *heapBacking) allocate(pages int) (*Block, error) {
	// Backed by words so every page is at least word aligned for atomic access
	words := make([]uint32, pages*h.pageSize/4)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), pages*h.pageSize)

	block := &Block{
		Pages: make([]Page, pages),
		free:  func() error { return nil },
	}

	for i := range block.Pages {
		block.Pages[i] = Page{
			Mem: mem[i*h.pageSize : (i+1)*h.pageSize : (i+1)*h.pageSize],
			Bus: h.dramBus | (h.nextPage * uint32(h.pageSize)),
		}
		h.nextPage++
	}

	return block, nil
}

func (h *heapBacking) close() error {
	return nil
}
