package periph

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const registerPage = 4096

// Open maps the DMA, clock, PCM and PWM register blocks from /dev/mem. periphBase is the
// physical address of the peripherals: 0x20000000 on BCM2835, 0x3F000000 on BCM2836/7 and
// 0xFE000000 on BCM2711.
func Open(periphBase uint32) (*Mapped, error) {
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open /dev/mem")
	}
	defer unix.Close(fd)

	var mapped [][]byte
	mapBlock := func(offset uint32) ([]byte, error) {
		mem, err := unix.Mmap(fd, int64(periphBase+offset), registerPage, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, errors.Wrapf(err, "mmap registers at %#x", periphBase+offset)
		}
		mapped = append(mapped, mem)
		return mem, nil
	}

	unmapAll := func() error {
		var err error
		for _, mem := range mapped {
			err = errors.CombineErrors(err, unix.Munmap(mem))
		}
		mapped = nil
		return err
	}

	var blocks RegisterBlocks
	for _, target := range []struct {
		offset uint32
		mem    *[]byte
	}{
		{dmaOffset, &blocks.DMA},
		{clkOffset, &blocks.Clock},
		{pcmOffset, &blocks.PCM},
		{pwmOffset, &blocks.PWM},
	} {
		*target.mem, err = mapBlock(target.offset)
		if err != nil {
			_ = unmapAll()
			return nil, err
		}
	}

	m := NewMapped(blocks)
	m.unmap = unmapAll
	return m, nil
}
