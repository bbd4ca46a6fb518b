package dsslot

import "errors"

// Construction errors for the ROM and SPI save devices.
var (
	ErrSizeNotPowerOfTwo = errors.New("dsslot: size is not a power of two")
	ErrSizeTooSmall      = errors.New("dsslot: size is below the minimum for this device kind")
	ErrUnsupportedSize   = errors.New("dsslot: size has no matching SPI save device kind")
)
