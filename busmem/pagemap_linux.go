package busmem

import (
	"encoding/binary"
	"unsafe"

	"github.com/cenkalti/backoff"
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const (
	pagemapEntrySize = 8
	pagemapPresent   = 1 << 63
	pagemapPFNMask   = 1<<55 - 1
	physicalMask     = 0x3FFFFFFF
)

type pagemapBacking struct {
	options   CreateOptions
	memFd     int
	pagemapFd int
}

func newPagemapBacking(options CreateOptions) (*pagemapBacking, error) {
	memFd, err := openDevMem()
	if err != nil {
		return nil, err
	}

	pagemapFd, err := unix.Open("/proc/self/pagemap", unix.O_RDONLY, 0)
	if err != nil {
		_ = unix.Close(memFd)
		return nil, errors.Wrap(err, "open /proc/self/pagemap")
	}

	return &pagemapBacking{
		options:   options,
		memFd:     memFd,
		pagemapFd: pagemapFd,
	}, nil
}

func (p *pagemapBacking) allocate(pages int) (*Block, error) {
	pageSize := p.options.PageSize
	size := pages * pageSize

	locked, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE|unix.MAP_LOCKED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap anonymous block")
	}

	// Force the kernel to back every page with a frame
	for _, fill := range []byte{0xAA, 0xFF, 0} {
		for i := range locked {
			locked[i] = fill
		}
	}

	var views []Page
	var mapErr error
	op := func() error {
		views, mapErr = p.mapFrames(locked, pages)
		if errors.Is(mapErr, errFrameMissing) {
			return mapErr
		}
		// Anything but a missing frame will not improve by waiting
		return nil
	}

	retry := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.options.RetryInterval), uint64(p.options.RetryAttempts-1))
	err = backoff.Retry(op, retry)
	if err == nil {
		err = mapErr
	}
	if err != nil {
		_ = unix.Munmap(locked)
		return nil, err
	}

	return &Block{
		Pages: views,
		free: func() error {
			var err error
			for _, view := range views {
				err = errors.CombineErrors(err, unix.Munmap(view.Mem))
			}
			return errors.CombineErrors(err, unix.Munmap(locked))
		},
	}, nil
}

// mapFrames reads the frame of every page of locked and maps each frame a second time through
// /dev/mem. Views are uncached, which is what the DMA engine sees.
func (p *pagemapBacking) mapFrames(locked []byte, pages int) ([]Page, error) {
	pageSize := p.options.PageSize
	index := int64(uintptr(unsafe.Pointer(&locked[0]))/uintptr(pageSize)) * pagemapEntrySize

	entries := make([]byte, pages*pagemapEntrySize)
	n, err := unix.Pread(p.pagemapFd, entries, index)
	if err != nil {
		return nil, errors.Wrap(err, "read /proc/self/pagemap")
	}
	if n != len(entries) {
		return nil, errors.Newf("short read of /proc/self/pagemap: %d of %d bytes", n, len(entries))
	}

	views := make([]Page, 0, pages)
	unmapAll := func() {
		for _, view := range views {
			_ = unix.Munmap(view.Mem)
		}
	}

	for i := 0; i < pages; i++ {
		entry := binary.LittleEndian.Uint64(entries[i*pagemapEntrySize:])
		physical := uint32((entry & pagemapPFNMask) * uint64(pageSize) & physicalMask)
		if entry&pagemapPresent == 0 || physical == 0 {
			unmapAll()
			return nil, errors.Wrapf(errFrameMissing, "page %d", i)
		}

		view, err := unix.Mmap(p.memFd, int64(physical), pageSize, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_SHARED|unix.MAP_LOCKED|unix.MAP_NORESERVE)
		if err != nil {
			unmapAll()
			return nil, errors.Wrapf(err, "mmap /dev/mem at %#x", physical)
		}

		views = append(views, Page{
			Mem: view,
			Bus: physical | p.options.DramBus,
		})
	}

	return views, nil
}

func (p *pagemapBacking) close() error {
	return errors.CombineErrors(unix.Close(p.pagemapFd), unix.Close(p.memFd))
}

func openDevMem() (int, error) {
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return -1, errors.Wrap(err, "open /dev/mem")
	}
	return fd, nil
}
