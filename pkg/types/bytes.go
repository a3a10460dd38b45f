package types

// Bytes is a uint64 wrapper representing a size in bytes.
type Bytes uint64

// KB returns the number of kilobytes (1024 base).
func (b Bytes) KB() float64 { return float64(b) / 1024 }
