package table

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/xitongsys/parquet-go/parquet"
)

// Kind is the ordering class of a value. Values only compare within a kind.
type Kind int

const (
	KindUnorderable Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unorderable"
	}
}

func KindOf(v any) Kind {
	switch v.(type) {
	case string:
		return KindString
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	default:
		return KindUnorderable
	}
}

// ColumnKind maps a physical type to its ordering class. Timestamps and dates
// are integer physical types and order numerically. INT96 and decimals stored
// as byte arrays have no byte-wise natural order.
func ColumnKind(col Column) Kind {
	switch col.Type {
	case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
		if col.ConvertedType != nil && *col.ConvertedType == parquet.ConvertedType_DECIMAL {
			return KindUnorderable
		}
		if col.LogicalType != nil && col.LogicalType.IsSetDECIMAL() {
			return KindUnorderable
		}
		return KindString
	case parquet.Type_INT32, parquet.Type_INT64:
		return KindInt
	case parquet.Type_FLOAT, parquet.Type_DOUBLE:
		return KindFloat
	case parquet.Type_BOOLEAN:
		return KindBool
	default:
		return KindUnorderable
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return v.(int64)
	}
}

func toFloat64(v any) float64 {
	if f, ok := v.(float32); ok {
		return float64(f)
	}
	return v.(float64)
}

// Compare orders a and b by their natural type order: strings byte-wise,
// numbers by magnitude (NaN after every number), false before true.
func Compare(a, b any) (int, error) {
	ka, kb := KindOf(a), KindOf(b)
	if ka == KindUnorderable || ka != kb {
		return 0, fmt.Errorf("cannot compare %T with %T: %w", a, b, utils.ErrIncomparableKeyType)
	}
	switch ka {
	case KindString:
		return strings.Compare(a.(string), b.(string)), nil
	case KindInt:
		x, y := toInt64(a), toInt64(b)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case KindFloat:
		x, y := toFloat64(a), toFloat64(b)
		xn, yn := math.IsNaN(x), math.IsNaN(y)
		switch {
		case xn && yn:
			return 0, nil
		case xn:
			return 1, nil
		case yn:
			return -1, nil
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	default:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		}
		return 1, nil
	}
}

// ParseColumnValue parses s as a value of col. FLOAT columns get a float32 so
// the value compares and hashes the same as the stored statistics.
func ParseColumnValue(col Column, s string) (any, error) {
	if col.Type == parquet.Type_FLOAT {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("error in ParseFloat: %w", err)
		}
		return float32(f), nil
	}
	return ParseValue(ColumnKind(col), s)
}

// ParseValue converts user input such as a CLI lookup value into kind.
func ParseValue(kind Kind, s string) (any, error) {
	switch kind {
	case KindString:
		return s, nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("error in ParseInt: %w", err)
		}
		return i, nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("error in ParseFloat: %w", err)
		}
		return f, nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("error in ParseBool: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot parse lookup for %s column: %w", kind, utils.ErrIncomparableKeyType)
	}
}

func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// EncodeKey is the byte form hashed by negative-lookup filters. Integers and
// floats are widened first so an int32 column and an int64 lookup agree.
func EncodeKey(v any) ([]byte, error) {
	switch KindOf(v) {
	case KindString:
		return []byte(v.(string)), nil
	case KindInt:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(toInt64(v)))
		return b, nil
	case KindFloat:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(toFloat64(v)))
		return b, nil
	case KindBool:
		if v.(bool) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("cannot encode %T: %w", v, utils.ErrIncomparableKeyType)
	}
}
