//go:build linux

package tier

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	mpolPreferred = 1
	maxMaskNodes  = 64
)

type osMapper struct{}

func (osMapper) mapHuge(length int, explicit, thp bool) ([]byte, error) {
	const prot = unix.PROT_READ | unix.PROT_WRITE
	const flags = unix.MAP_PRIVATE | unix.MAP_ANONYMOUS

	var hugetlbErr error
	if explicit {
		b, err := unix.Mmap(-1, 0, length, prot, flags|unix.MAP_HUGETLB)
		if err == nil {
			return b, nil
		}
		hugetlbErr = err
	}
	if !thp {
		return nil, errors.Join(errUnavailable, hugetlbErr)
	}
	b, err := unix.Mmap(-1, 0, length, prot, flags)
	if err != nil {
		return nil, err
	}
	if err := unix.Madvise(b, unix.MADV_HUGEPAGE); err != nil {
		_ = unix.Munmap(b)
		return nil, err
	}
	return b, nil
}

func (osMapper) mapLocal(length, node int) ([]byte, error) {
	if node < 0 || node >= maxMaskNodes {
		return nil, errors.New("tier: node outside mbind mask")
	}
	b, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	mask := uint64(1) << uint(node)
	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)),
		mpolPreferred, uintptr(unsafe.Pointer(&mask)), maxMaskNodes+1, 0)
	if errno != 0 {
		_ = unix.Munmap(b)
		return nil, errno
	}
	return b, nil
}

func (osMapper) unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	err := unix.Munmap(b)
	if errors.Is(err, unix.EINVAL) {
		return nil
	}
	return err
}
