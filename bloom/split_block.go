package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// SplitBlock is the parquet split block bloom filter that engines read from
// the file itself: 256-bit blocks of eight 32-bit words, indexed by the
// xxhash64 of a value's plain encoding. Each insert sets one bit per word of a
// single block.
type SplitBlock struct {
	words []uint32
}

const (
	blockWords = 8
	blockBytes = blockWords * 4

	MinSplitBlockBytes = blockBytes
	MaxSplitBlockBytes = 128 << 20
)

var (
	salt = [blockWords]uint32{
		0x47b6137b, 0x44974d91, 0x8824ad5b, 0xa2b7289d,
		0x705495c7, 0x2df1424b, 0x9efc4947, 0x5c6bfb31,
	}

	ErrUnsupportedPlainType = errors.New("value has no plain encoding for split block filters")
)

// SplitBlockBytes sizes a split block filter for nDistinct values at fpp,
// rounded up to a power of two within [MinSplitBlockBytes, MaxSplitBlockBytes].
func SplitBlockBytes(nDistinct int64, fpp float64) (int, error) {
	if !(fpp > 0 && fpp < 1) {
		return 0, ErrInvalidProbability
	}
	if nDistinct < 1 {
		nDistinct = 1
	}
	nBits := -8 * float64(nDistinct) / math.Log(1-math.Pow(fpp, 1.0/8))
	n := uint64(math.Ceil(nBits / 8))
	if n < MinSplitBlockBytes {
		n = MinSplitBlockBytes
	}
	if n > MaxSplitBlockBytes {
		n = MaxSplitBlockBytes
	}
	if n&(n-1) != 0 {
		n = 1 << bits.Len64(n)
	}
	if n > MaxSplitBlockBytes {
		n = MaxSplitBlockBytes
	}
	return int(n), nil
}

// NewSplitBlock allocates numBytes, which must be a positive multiple of 32.
func NewSplitBlock(numBytes int) (*SplitBlock, error) {
	if numBytes <= 0 || numBytes%blockBytes != 0 {
		return nil, fmt.Errorf("split block filter of %d bytes: %w", numBytes, ErrCorruptFilter)
	}
	return &SplitBlock{words: make([]uint32, numBytes/4)}, nil
}

// SplitBlockFromBytes wraps the bitset section of a split block filter.
func SplitBlockFromBytes(b []byte) (*SplitBlock, error) {
	sb, err := NewSplitBlock(len(b))
	if err != nil {
		return nil, err
	}
	for i := range sb.words {
		sb.words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return sb, nil
}

func (sb *SplitBlock) NumBytes() int {
	return len(sb.words) * 4
}

// Bytes is the bitset section as stored after the filter header.
func (sb *SplitBlock) Bytes() []byte {
	out := make([]byte, sb.NumBytes())
	for i, w := range sb.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func (sb *SplitBlock) block(h uint64) []uint32 {
	nBlocks := uint64(len(sb.words) / blockWords)
	i := ((h >> 32) * nBlocks) >> 32
	return sb.words[i*blockWords : (i+1)*blockWords]
}

func (sb *SplitBlock) InsertHash(h uint64) {
	blk := sb.block(h)
	key := uint32(h)
	for i := range blk {
		blk[i] |= 1 << ((key * salt[i]) >> 27)
	}
}

func (sb *SplitBlock) CheckHash(h uint64) bool {
	blk := sb.block(h)
	key := uint32(h)
	for i := range blk {
		if blk[i]&(1<<((key*salt[i])>>27)) == 0 {
			return false
		}
	}
	return true
}

// Insert adds v, which must already be the column's physical Go type.
func (sb *SplitBlock) Insert(v any) error {
	b, err := PlainBytes(v)
	if err != nil {
		return err
	}
	sb.InsertHash(xxhash.Sum64(b))
	return nil
}

func (sb *SplitBlock) Check(v any) (bool, error) {
	b, err := PlainBytes(v)
	if err != nil {
		return false, err
	}
	return sb.CheckHash(xxhash.Sum64(b)), nil
}

// PlainBytes is the parquet plain encoding of a physical value, without the
// length prefix byte arrays carry in data pages.
func PlainBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return []byte(x), nil
	case int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(x)), nil
	case int64:
		return binary.LittleEndian.AppendUint64(nil, uint64(x)), nil
	case float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(x)), nil
	case float64:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(x)), nil
	default:
		return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedPlainType)
	}
}
