//go:build !linux

package tier

type osMapper struct{}

func (osMapper) mapHuge(int, bool, bool) ([]byte, error) { return nil, errUnavailable }

func (osMapper) mapLocal(int, int) ([]byte, error) { return nil, errUnavailable }

func (osMapper) unmap([]byte) error { return nil }
