package record

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuannm99/pagestore/internal/pagefile"
)

// metaPage is the decoded form of a table's page 0: a textual
// "tupleCount\nfirstFreePage\nschema\n" record, zero-padded out to a full
// page.
type metaPage struct {
	TupleCount    int
	FirstFreePage int
	Schema        Schema
}

func encodeMetaPage(m metaPage) []byte {
	text := fmt.Sprintf("%d\n%d\n%s\n", m.TupleCount, m.FirstFreePage, m.Schema.Serialize())
	buf := make([]byte, pagefile.PageSize)
	copy(buf, text)
	return buf
}

func decodeMetaPage(buf []byte) (metaPage, error) {
	text := string(bytes.TrimRight(buf, "\x00"))
	parts := strings.SplitN(text, "\n", 3)
	if len(parts) < 3 {
		return metaPage{}, fmt.Errorf("%w: metadata page has %d lines, want 3", ErrSerializeSchema, len(parts))
	}

	tupleCount, err := strconv.Atoi(parts[0])
	if err != nil {
		return metaPage{}, fmt.Errorf("%w: tuple count %q: %v", ErrSerializeSchema, parts[0], err)
	}
	firstFree, err := strconv.Atoi(parts[1])
	if err != nil {
		return metaPage{}, fmt.Errorf("%w: first free page %q: %v", ErrSerializeSchema, parts[1], err)
	}

	schemaText := strings.TrimSuffix(parts[2], "\n")
	schema, err := ParseSchema(schemaText)
	if err != nil {
		return metaPage{}, err
	}

	return metaPage{TupleCount: tupleCount, FirstFreePage: firstFree, Schema: schema}, nil
}
