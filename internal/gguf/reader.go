package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxStringLen bounds key and string value lengths so a corrupt header
// cannot force a huge allocation.
const maxStringLen = 1 << 24

type reader struct {
	r   *bufio.Reader
	off int64
	buf [8]byte
}

func newReader(rd io.Reader) *reader {
	return &reader{r: bufio.NewReaderSize(rd, 1<<16)}
}

func (r *reader) fill(n int) ([]byte, error) {
	b := r.buf[:n]
	if _, err := io.ReadFull(r.r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("offset %d: %w", r.off, err)
	}
	r.off += int64(n)
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) f32() (float32, error) {
	u, err := r.u32()
	return math.Float32frombits(u), err
}

func (r *reader) f64() (float64, error) {
	u, err := r.u64()
	return math.Float64frombits(u), err
}

func (r *reader) str() (string, error) {
	n, err := r.u64()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("offset %d: string length %d too large", r.off, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", fmt.Errorf("offset %d: %w", r.off, io.ErrUnexpectedEOF)
	}
	r.off += int64(n)
	return string(b), nil
}
