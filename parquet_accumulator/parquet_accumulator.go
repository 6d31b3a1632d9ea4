package parquet_accumulator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/xitongsys/parquet-go/parquet"
)

type (
	// ParquetSchemaAccumulator collects the writer schema for a table, one tag
	// per flat column.
	ParquetSchemaAccumulator struct {
		fields     []SchemaTag
		dictionary bool
	}

	SchemaTag struct {
		Name           string
		Type           string
		ConvertedType  string
		LogicalType    *parquet.LogicalType
		RepetitionType RepetitionType
		Encoding       string
		Scale          *int32
		Precision      *int32
		Length         *int32
	}

	RepetitionType string
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

func NewParquetAccumulator(dictionary bool) ParquetSchemaAccumulator {
	return ParquetSchemaAccumulator{dictionary: dictionary}
}

// WriteColumn adds col to the schema unless a column of that name exists.
func (pa *ParquetSchemaAccumulator) WriteColumn(col table.Column) {
	if pa.fieldExists(col.Name) {
		return
	}
	tag := SchemaTag{
		Name:           col.Name,
		Type:           col.Type.String(),
		RepetitionType: Optional,
		Encoding:       pa.encodingFor(col.Type),
		LogicalType:    col.LogicalType,
		Scale:          col.Scale,
		Precision:      col.Precision,
		Length:         col.Length,
	}
	if col.ConvertedType != nil {
		tag.ConvertedType = col.ConvertedType.String()
	}
	pa.fields = append(pa.fields, tag)
}

func (pa *ParquetSchemaAccumulator) encodingFor(t parquet.Type) string {
	if pa.dictionary && t != parquet.Type_BOOLEAN {
		return "PLAIN_DICTIONARY"
	}
	return "PLAIN"
}

func (pa *ParquetSchemaAccumulator) fieldExists(fieldName string) (exists bool) {
	for _, field := range pa.fields {
		if field.Name == fieldName {
			return true
		}
	}
	return
}

func (pa *ParquetSchemaAccumulator) GetColumnNames() []string {
	var cols []string
	for _, field := range pa.fields {
		cols = append(cols, field.Name)
	}
	return cols
}

// ToTag renders the tag in the writer metadata syntax.
func (st SchemaTag) ToTag() string {
	var tagArr []string
	if st.Name != "" {
		tagArr = append(tagArr, "name="+st.Name)
	}
	if st.Type != "" {
		tagArr = append(tagArr, "type="+st.Type)
	}
	if st.ConvertedType != "" {
		tagArr = append(tagArr, "convertedtype="+st.ConvertedType)
	}
	tagArr = append(tagArr, logicalTypeTags(st.LogicalType)...)
	if st.Scale != nil {
		tagArr = append(tagArr, fmt.Sprintf("scale=%d", *st.Scale))
	}
	if st.Precision != nil {
		tagArr = append(tagArr, fmt.Sprintf("precision=%d", *st.Precision))
	}
	if st.Length != nil {
		tagArr = append(tagArr, fmt.Sprintf("length=%d", *st.Length))
	}
	if st.Encoding != "" {
		tagArr = append(tagArr, "encoding="+st.Encoding)
	}
	if string(st.RepetitionType) != "" {
		tagArr = append(tagArr, "repetitiontype="+string(st.RepetitionType))
	}
	return strings.Join(tagArr, ", ")
}

// GetMetadata returns the per-column tags in column order.
func (pa *ParquetSchemaAccumulator) GetMetadata() []string {
	md := make([]string, 0, len(pa.fields))
	for _, field := range pa.fields {
		md = append(md, field.ToTag())
	}
	return md
}

// logicalTypeTags renders lt as logicaltype tags. Nested and unknown logical
// types have no flat tag form and are left to the converted type.
func logicalTypeTags(lt *parquet.LogicalType) []string {
	if lt == nil {
		return nil
	}
	tag := func(name string, kv ...string) []string {
		tags := []string{"logicaltype=" + name}
		for i := 0; i+1 < len(kv); i += 2 {
			tags = append(tags, "logicaltype."+kv[i]+"="+kv[i+1])
		}
		return tags
	}
	switch {
	case lt.IsSetSTRING():
		return tag("STRING")
	case lt.IsSetENUM():
		return tag("ENUM")
	case lt.IsSetDECIMAL():
		return tag("DECIMAL",
			"precision", strconv.Itoa(int(lt.DECIMAL.Precision)),
			"scale", strconv.Itoa(int(lt.DECIMAL.Scale)))
	case lt.IsSetDATE():
		return tag("DATE")
	case lt.IsSetTIME():
		if unit := timeUnit(lt.TIME.Unit); unit != "" {
			return tag("TIME",
				"isadjustedtoutc", strconv.FormatBool(lt.TIME.IsAdjustedToUTC),
				"unit", unit)
		}
	case lt.IsSetTIMESTAMP():
		if unit := timeUnit(lt.TIMESTAMP.Unit); unit != "" {
			return tag("TIMESTAMP",
				"isadjustedtoutc", strconv.FormatBool(lt.TIMESTAMP.IsAdjustedToUTC),
				"unit", unit)
		}
	case lt.IsSetINTEGER():
		return tag("INTEGER",
			"bitwidth", strconv.Itoa(int(lt.INTEGER.BitWidth)),
			"issigned", strconv.FormatBool(lt.INTEGER.IsSigned))
	case lt.IsSetJSON():
		return tag("JSON")
	case lt.IsSetBSON():
		return tag("BSON")
	case lt.IsSetUUID():
		return tag("UUID")
	}
	return nil
}

// LogicalTypeName renders lt for reports, e.g. TIMESTAMP(isadjustedtoutc=false,unit=NANOS).
func LogicalTypeName(lt *parquet.LogicalType) string {
	tags := logicalTypeTags(lt)
	if len(tags) == 0 {
		return ""
	}
	name := strings.TrimPrefix(tags[0], "logicaltype=")
	if len(tags) == 1 {
		return name
	}
	params := make([]string, 0, len(tags)-1)
	for _, t := range tags[1:] {
		params = append(params, strings.TrimPrefix(t, "logicaltype."))
	}
	return name + "(" + strings.Join(params, ",") + ")"
}

func timeUnit(u *parquet.TimeUnit) string {
	switch {
	case u == nil:
		return ""
	case u.IsSetMILLIS():
		return "MILLIS"
	case u.IsSetMICROS():
		return "MICROS"
	case u.IsSetNANOS():
		return "NANOS"
	}
	return ""
}
