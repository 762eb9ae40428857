package record

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType is the fixed set of attribute types a Schema can declare.
type DataType uint8

const (
	TypeInt DataType = iota
	TypeFloat
	TypeBool
	TypeString
)

func (t DataType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeBool:
		return "BOOL"
	case TypeString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// Attribute is one column of a Schema: a name, a type, and for STRING the
// declared fixed length in bytes. Length is ignored for the other types,
// which have a fixed width of their own.
type Attribute struct {
	Name   string
	Type   DataType
	Length int
}

// Width is the number of bytes this attribute occupies in a record's byte
// buffer.
func (a Attribute) Width() int {
	switch a.Type {
	case TypeInt:
		return 4
	case TypeFloat:
		return 4
	case TypeBool:
		return 1
	case TypeString:
		return a.Length
	default:
		return 0
	}
}

// Schema is an ordered list of attributes plus the subset of attribute
// indexes that make up the table's key.
type Schema struct {
	Attrs    []Attribute
	KeyAttrs []int
}

// RecordWidth is the total byte width of one record under this schema: the
// sum of every attribute's width. It does not include the one-byte slot tag;
// that belongs to the page layout, not the record.
func (s Schema) RecordWidth() int {
	w := 0
	for _, a := range s.Attrs {
		w += a.Width()
	}
	return w
}

// offsetOf returns the byte offset of attribute attrNum within a record.
func (s Schema) offsetOf(attrNum int) int {
	off := 0
	for i := 0; i < attrNum; i++ {
		off += s.Attrs[i].Width()
	}
	return off
}

// Serialize renders the schema as the textual grammar stored on a table's
// metadata page: "numAttr (name type len)* keySize (keyIdx)*".
func (s Schema) Serialize() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", len(s.Attrs))
	for _, a := range s.Attrs {
		fmt.Fprintf(&b, " %s %d %d", a.Name, int(a.Type), a.Length)
	}
	fmt.Fprintf(&b, " %d", len(s.KeyAttrs))
	for _, k := range s.KeyAttrs {
		fmt.Fprintf(&b, " %d", k)
	}
	return b.String()
}

// ParseSchema parses the textual grammar written by Serialize.
func ParseSchema(s string) (Schema, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("%w: empty schema text", ErrSerializeSchema)
	}

	pos := 0
	next := func() (string, error) {
		if pos >= len(fields) {
			return "", fmt.Errorf("%w: truncated schema text", ErrSerializeSchema)
		}
		v := fields[pos]
		pos++
		return v, nil
	}
	nextInt := func() (int, error) {
		v, err := next()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrSerializeSchema, v)
		}
		return n, nil
	}

	numAttr, err := nextInt()
	if err != nil {
		return Schema{}, err
	}

	out := Schema{Attrs: make([]Attribute, numAttr)}
	for i := 0; i < numAttr; i++ {
		name, err := next()
		if err != nil {
			return Schema{}, err
		}
		typ, err := nextInt()
		if err != nil {
			return Schema{}, err
		}
		length, err := nextInt()
		if err != nil {
			return Schema{}, err
		}
		out.Attrs[i] = Attribute{Name: name, Type: DataType(typ), Length: length}
	}

	keySize, err := nextInt()
	if err != nil {
		return Schema{}, err
	}
	out.KeyAttrs = make([]int, keySize)
	for i := 0; i < keySize; i++ {
		idx, err := nextInt()
		if err != nil {
			return Schema{}, err
		}
		out.KeyAttrs[i] = idx
	}

	return out, nil
}
