package busmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const (
	mailboxDevice         = "/dev/vcio"
	mailboxFallbackDevice = "/dev/pigpio-mb"
	mailboxMajor          = 100

	// _IOWR(100, 0, char *)
	mailboxIoctl = 3<<30 | unsafe.Sizeof(uintptr(0))<<16 | mailboxMajor<<8

	mailboxProcessRequest = 0
	mailboxResponseOK     = 0x80000000
	mailboxEndTag         = 0

	tagAllocateMemory = 0x3000C
	tagLockMemory     = 0x3000D
	tagUnlockMemory   = 0x3000E
	tagReleaseMemory  = 0x3000F

	busToPhysicalMask = ^uint32(0xC0000000)
)

type mailboxBacking struct {
	options CreateOptions
	fd      int
	memFd   int
}

func newMailboxBacking(options CreateOptions) (*mailboxBacking, error) {
	fd, err := unix.Open(mailboxDevice, unix.O_RDONLY, 0)
	if err != nil {
		// Older kernels don't create the node; make our own
		_ = unix.Unlink(mailboxFallbackDevice)
		_ = unix.Mknod(mailboxFallbackDevice, unix.S_IFCHR|0600, int(unix.Mkdev(mailboxMajor, 0)))

		fd, err = unix.Open(mailboxFallbackDevice, unix.O_RDONLY, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", mailboxFallbackDevice)
		}
	}

	memFd, err := openDevMem()
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &mailboxBacking{
		options: options,
		fd:      fd,
		memFd:   memFd,
	}, nil
}

// property issues a single-tag property request and returns the first response word
func (m *mailboxBacking) property(tag uint32, values ...uint32) (uint32, error) {
	var buf [32]uint32

	i := 1
	buf[i] = mailboxProcessRequest
	i++
	buf[i] = tag
	i++
	buf[i] = uint32(4 * len(values))
	i++
	buf[i] = uint32(4 * len(values))
	i++
	for _, value := range values {
		buf[i] = value
		i++
	}
	buf[i] = mailboxEndTag
	i++
	buf[0] = uint32(i * 4)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(m.fd), mailboxIoctl, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return 0, errors.Wrapf(errno, "mailbox property %#x", tag)
	}
	if buf[1] != mailboxResponseOK {
		return 0, errors.Newf("mailbox property %#x answered %#x", tag, buf[1])
	}

	return buf[5], nil
}

func (m *mailboxBacking) allocate(pages int) (*Block, error) {
	pageSize := m.options.PageSize
	size := pages * pageSize

	handle, err := m.property(tagAllocateMemory, uint32(size), uint32(pageSize), m.options.MemFlag)
	if err != nil {
		return nil, err
	}
	if handle == 0 {
		return nil, errors.Newf("firmware refused %d bytes", size)
	}

	bus, err := m.property(tagLockMemory, handle)
	if err == nil && bus == 0 {
		err = errors.New("firmware could not lock memory")
	}
	if err != nil {
		_, _ = m.property(tagReleaseMemory, handle)
		return nil, err
	}

	mem, err := unix.Mmap(m.memFd, int64(bus&busToPhysicalMask), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_, _ = m.property(tagUnlockMemory, handle)
		_, _ = m.property(tagReleaseMemory, handle)
		return nil, errors.Wrapf(err, "mmap /dev/mem at bus %#x", bus)
	}

	block := &Block{
		Pages: make([]Page, pages),
		free: func() error {
			err := unix.Munmap(mem)
			_, unlockErr := m.property(tagUnlockMemory, handle)
			_, releaseErr := m.property(tagReleaseMemory, handle)
			return errors.CombineErrors(err, errors.CombineErrors(unlockErr, releaseErr))
		},
	}

	for i := range block.Pages {
		block.Pages[i] = Page{
			Mem: mem[i*pageSize : (i+1)*pageSize : (i+1)*pageSize],
			Bus: bus + uint32(i*pageSize),
		}
	}

	return block, nil
}

func (m *mailboxBacking) close() error {
	return errors.CombineErrors(unix.Close(m.fd), unix.Close(m.memFd))
}
