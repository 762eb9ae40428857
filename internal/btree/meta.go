package btree

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuannm99/pagestore/internal/pagefile"
)

// treeMeta is the decoded form of an index file's page 0: the text
// "keyType order rootPage numNodes numEntries", NUL-terminated, rest zero.
type treeMeta struct {
	KeyType    int
	Order      int
	RootPage   int
	NumNodes   int
	NumEntries int
}

func encodeTreeMeta(m treeMeta) []byte {
	text := fmt.Sprintf("%d %d %d %d %d", m.KeyType, m.Order, m.RootPage, m.NumNodes, m.NumEntries)
	buf := make([]byte, pagefile.PageSize)
	copy(buf, text)
	return buf
}

func decodeTreeMeta(buf []byte) (treeMeta, error) {
	text := string(bytes.TrimRight(buf, "\x00"))
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return treeMeta{}, fmt.Errorf("%w: want 5 fields, got %d", ErrMalformedMeta, len(fields))
	}

	ints := make([]int, 5)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return treeMeta{}, fmt.Errorf("%w: field %d = %q: %v", ErrMalformedMeta, i, f, err)
		}
		ints[i] = n
	}
	return treeMeta{
		KeyType:    ints[0],
		Order:      ints[1],
		RootPage:   ints[2],
		NumNodes:   ints[3],
		NumEntries: ints[4],
	}, nil
}
