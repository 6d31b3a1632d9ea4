// Package bloom implements the per-partition negative-lookup filter. A miss is
// definitive; a hit is wrong with roughly the configured probability.
package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
	"github.com/danthegoodman1/parquetlayout/table"
)

const (
	minBits = 64
	// header: version byte, hash count, bit count
	headerLen     = 1 + 4 + 8
	formatVersion = 1
)

var (
	ErrInvalidProbability = errors.New("false positive probability must be in (0, 1)")
	ErrCorruptFilter      = errors.New("corrupt filter encoding")
	ErrEmptyFilter        = errors.New("filter has no bit array")
)

// SizeAndHashCount returns the bit count and hash count for nDistinct elements
// at false positive probability fpp:
//
//	m = -n ln(p) / (ln 2)^2, k = (m/n) ln 2
//
// m is rounded up to a whole 64-bit word.
func SizeAndHashCount(nDistinct int64, fpp float64) (uint64, uint32, error) {
	if !(fpp > 0 && fpp < 1) {
		return 0, 0, ErrInvalidProbability
	}
	if nDistinct < 1 {
		nDistinct = 1
	}
	n := float64(nDistinct)
	m := math.Ceil(-n * math.Log(fpp) / (math.Ln2 * math.Ln2))
	bits := uint64(m)
	if bits < minBits {
		bits = minBits
	}
	bits = (bits + 63) / 64 * 64

	k := uint32(math.Round(float64(bits) / n * math.Ln2))
	if k < 1 {
		k = 1
	}
	return bits, k, nil
}

type Filter struct {
	bits   *bitset.BitSet
	m      uint64
	hashes uint32
}

func New(bits uint64, hashes uint32) *Filter {
	if bits < minBits {
		bits = minBits
	}
	if hashes < 1 {
		hashes = 1
	}
	return &Filter{bits: bitset.New(uint(bits)), m: bits, hashes: hashes}
}

// NewWithEstimates sizes a filter for nDistinct elements at fpp.
func NewWithEstimates(nDistinct int64, fpp float64) (*Filter, error) {
	bits, k, err := SizeAndHashCount(nDistinct, fpp)
	if err != nil {
		return nil, err
	}
	return New(bits, k), nil
}

func (f *Filter) Bits() uint64 {
	return f.m
}

func (f *Filter) HashCount() uint32 {
	return f.hashes
}

// positions derives every bit position from one xxhash digest split into two halves.
func (f *Filter) positions(data []byte, fn func(pos uint64) bool) {
	h := xxhash.Sum64(data)
	h1, h2 := h&0xffffffff, h>>32
	for i := uint64(0); i < uint64(f.hashes); i++ {
		if !fn((h1 + i*h2) % f.m) {
			return
		}
	}
}

func (f *Filter) AddBytes(data []byte) {
	f.positions(data, func(pos uint64) bool {
		f.bits.Set(uint(pos))
		return true
	})
}

func (f *Filter) TestBytes(data []byte) bool {
	present := true
	f.positions(data, func(pos uint64) bool {
		present = f.bits.Test(uint(pos))
		return present
	})
	return present
}

// Add inserts a scalar value; nil is ignored since nulls never match a lookup.
func (f *Filter) Add(v any) error {
	if v == nil {
		return nil
	}
	b, err := table.EncodeKey(v)
	if err != nil {
		return err
	}
	f.AddBytes(b)
	return nil
}

func (f *Filter) Test(v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	b, err := table.EncodeKey(v)
	if err != nil {
		return false, err
	}
	return f.TestBytes(b), nil
}

// Build sizes a filter for the distinct non-null values and inserts them.
func Build(values []any, fpp float64) (*Filter, int64, error) {
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		b, err := table.EncodeKey(v)
		if err != nil {
			return nil, 0, err
		}
		distinct[string(b)] = struct{}{}
	}
	f, err := NewWithEstimates(int64(len(distinct)), fpp)
	if err != nil {
		return nil, 0, err
	}
	for k := range distinct {
		f.AddBytes([]byte(k))
	}
	return f, int64(len(distinct)), nil
}

// MarshalBinary encodes the filter as
//
//	[version:uint8][hashes:uint32][bits:uint64][bitset...]
func (f *Filter) MarshalBinary() ([]byte, error) {
	if f == nil || f.bits == nil {
		return nil, ErrEmptyFilter
	}
	bs, err := f.bits.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("error in bitset.MarshalBinary: %w", err)
	}
	out := make([]byte, headerLen, headerLen+len(bs))
	out[0] = formatVersion
	binary.LittleEndian.PutUint32(out[1:5], f.hashes)
	binary.LittleEndian.PutUint64(out[5:13], f.m)
	return append(out, bs...), nil
}

func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < headerLen || data[0] != formatVersion {
		return ErrCorruptFilter
	}
	hashes := binary.LittleEndian.Uint32(data[1:5])
	m := binary.LittleEndian.Uint64(data[5:13])
	if hashes == 0 || m == 0 {
		return ErrCorruptFilter
	}
	bs := &bitset.BitSet{}
	if err := bs.UnmarshalBinary(data[headerLen:]); err != nil {
		return fmt.Errorf("error in bitset.UnmarshalBinary: %w", err)
	}
	if uint64(bs.Len()) < m {
		return ErrCorruptFilter
	}
	f.bits, f.m, f.hashes = bs, m, hashes
	return nil
}
