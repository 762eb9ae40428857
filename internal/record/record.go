package record

import (
	"fmt"
	"math"

	"github.com/tuannm99/pagestore/internal/alias/bx"
)

// RecordID identifies a record by the page it lives on and its slot within
// that page.
type RecordID struct {
	Page int
	Slot int
}

// Record is one row's worth of attribute bytes, laid out back to back with
// no padding beyond what each attribute's own width requires. Data is
// exactly schema.RecordWidth() bytes long; unlike the reference
// implementation this carries no extra leading byte.
type Record struct {
	ID   RecordID
	Data []byte
}

// NewRecord allocates a zeroed record buffer sized for schema.
func NewRecord(schema Schema) *Record {
	return &Record{
		ID:   RecordID{Page: -1, Slot: -1},
		Data: make([]byte, schema.RecordWidth()),
	}
}

// Value is a typed attribute value as returned by GetAttr and consumed by
// SetAttr. Only the field matching Type is meaningful.
type Value struct {
	Type  DataType
	Int   int32
	Float float32
	Bool  bool
	Str   string
}

func stringFromZeroPadded(raw []byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}

// GetAttr reads the attrNum'th attribute out of rec under schema.
func GetAttr(rec *Record, schema Schema, attrNum int) (Value, error) {
	if attrNum < 0 || attrNum >= len(schema.Attrs) {
		return Value{}, fmt.Errorf("%w: attribute index %d", ErrUnknownDataType, attrNum)
	}
	a := schema.Attrs[attrNum]
	off := schema.offsetOf(attrNum)
	end := off + a.Width()
	if end > len(rec.Data) {
		return Value{}, fmt.Errorf("%w: record shorter than schema expects", ErrUnknownDataType)
	}

	switch a.Type {
	case TypeInt:
		return Value{Type: TypeInt, Int: int32(bx.U32(rec.Data[off:end]))}, nil
	case TypeFloat:
		bits := bx.U32(rec.Data[off:end])
		return Value{Type: TypeFloat, Float: math.Float32frombits(bits)}, nil
	case TypeBool:
		return Value{Type: TypeBool, Bool: rec.Data[off] != 0}, nil
	case TypeString:
		return Value{Type: TypeString, Str: stringFromZeroPadded(rec.Data[off:end])}, nil
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownDataType, a.Type)
	}
}

// SetAttr writes v into the attrNum'th attribute slot of rec under schema.
// STRING values are zero-padded to the attribute's full declared length;
// a value longer than that length is an error, not a silent truncation.
func SetAttr(rec *Record, schema Schema, attrNum int, v Value) error {
	if attrNum < 0 || attrNum >= len(schema.Attrs) {
		return fmt.Errorf("%w: attribute index %d", ErrUnknownDataType, attrNum)
	}
	a := schema.Attrs[attrNum]
	if v.Type != a.Type {
		return fmt.Errorf("%w: attribute %d is %s, got %s", ErrUnknownDataType, attrNum, a.Type, v.Type)
	}
	off := schema.offsetOf(attrNum)
	end := off + a.Width()
	if end > len(rec.Data) {
		return fmt.Errorf("%w: record shorter than schema expects", ErrUnknownDataType)
	}

	switch a.Type {
	case TypeInt:
		bx.PutU32(rec.Data[off:end], uint32(v.Int))
	case TypeFloat:
		bx.PutU32(rec.Data[off:end], math.Float32bits(v.Float))
	case TypeBool:
		if v.Bool {
			rec.Data[off] = 1
		} else {
			rec.Data[off] = 0
		}
	case TypeString:
		if len(v.Str) > a.Length {
			return fmt.Errorf("%w: string %q longer than declared length %d", ErrUnknownDataType, v.Str, a.Length)
		}
		for i := range rec.Data[off:end] {
			rec.Data[off+i] = 0
		}
		copy(rec.Data[off:end], v.Str)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownDataType, a.Type)
	}
	return nil
}
