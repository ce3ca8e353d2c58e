package busmem

// Page is one page of bus memory. Mem and Bus always denote the same physical page.
type Page struct {
	Mem []byte
	Bus uint32
}

// Block is a run of pages obtained from the allocator in one request. The pages of a block are not
// guaranteed to be physically contiguous: use each page's own bus address.
type Block struct {
	id    int
	Pages []Page

	free func() error
}

// ID returns the allocator-unique id of the block
func (b *Block) ID() int { return b.id }

// Size returns the size of the block in bytes
func (b *Block) Size() int {
	size := 0
	for _, page := range b.Pages {
		size += len(page.Mem)
	}
	return size
}

func (b *Block) destroy() error {
	if b.free == nil {
		panic("attempting to destroy a bus memory block that was already destroyed")
	}

	err := b.free()
	b.free = nil
	b.Pages = nil
	return err
}
