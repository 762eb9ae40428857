package btree

import "github.com/tuannm99/pagestore/internal/alias/bx"

// KeyType is the only key type this index supports; the metadata page's
// keyType field is carried for forward compatibility but every key is
// encoded as an 8-byte integer regardless.
type KeyType = int64

// RID is a record identifier: the page and slot a key's payload lives at in
// the owning table.
type RID struct {
	Page int
	Slot int
}

const (
	leafTag     byte = 1
	internalTag byte = 2

	leafHeaderSize     = 1 + 4 + 4 // tag, keyCount, nextLeafPage
	internalHeaderSize = 1 + 4     // tag, keyCount

	leafEntrySize     = 8 + 4 + 4 // key, rid.page, rid.slot
	internalEntrySize = 8 + 4     // key, childPage
)

type leafEntry struct {
	key KeyType
	rid RID
}

// maxLeafOrder and maxInternalOrder bound how large an order n may be for a
// single leaf/internal node (holding up to n+1 entries transiently during a
// split) to still fit inside one page.
func maxLeafOrder(pageSize int) int {
	return (pageSize-leafHeaderSize)/leafEntrySize - 1
}

func maxInternalOrder(pageSize int) int {
	return (pageSize-internalHeaderSize)/internalEntrySize - 2
}

func readLeafNode(buf []byte) (entries []leafEntry, nextLeaf int, err error) {
	if len(buf) < leafHeaderSize || buf[0] != leafTag {
		return nil, 0, ErrMalformedNode
	}
	keyCount := int(bx.U32(buf[1:5]))
	nextLeaf = int(int32(bx.U32(buf[5:9])))

	entries = make([]leafEntry, keyCount)
	off := leafHeaderSize
	for i := 0; i < keyCount; i++ {
		key := int64(bx.U64(buf[off : off+8]))
		page := int(int32(bx.U32(buf[off+8 : off+12])))
		slot := int(int32(bx.U32(buf[off+12 : off+16])))
		entries[i] = leafEntry{key: key, rid: RID{Page: page, Slot: slot}}
		off += leafEntrySize
	}
	return entries, nextLeaf, nil
}

func writeLeafNode(buf []byte, entries []leafEntry, nextLeaf int) {
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = leafTag
	bx.PutU32(buf[1:5], uint32(len(entries)))
	bx.PutU32(buf[5:9], uint32(int32(nextLeaf)))

	off := leafHeaderSize
	for _, e := range entries {
		bx.PutU64(buf[off:off+8], uint64(e.key))
		bx.PutU32(buf[off+8:off+12], uint32(int32(e.rid.Page)))
		bx.PutU32(buf[off+12:off+16], uint32(int32(e.rid.Slot)))
		off += leafEntrySize
	}
}

func readInternalNode(buf []byte) (keys []KeyType, children []int, err error) {
	if len(buf) < internalHeaderSize || buf[0] != internalTag {
		return nil, nil, ErrMalformedNode
	}
	keyCount := int(bx.U32(buf[1:5]))

	keys = make([]KeyType, keyCount)
	children = make([]int, keyCount+1)
	off := internalHeaderSize
	for i := 0; i < keyCount; i++ {
		keys[i] = int64(bx.U64(buf[off : off+8]))
		off += 8
	}
	for i := 0; i < keyCount+1; i++ {
		children[i] = int(int32(bx.U32(buf[off : off+4])))
		off += 4
	}
	return keys, children, nil
}

func writeInternalNode(buf []byte, keys []KeyType, children []int) {
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = internalTag
	bx.PutU32(buf[1:5], uint32(len(keys)))

	off := internalHeaderSize
	for _, k := range keys {
		bx.PutU64(buf[off:off+8], uint64(k))
		off += 8
	}
	for _, c := range children {
		bx.PutU32(buf[off:off+4], uint32(int32(c)))
		off += 4
	}
}

func nodeTag(buf []byte) byte {
	if len(buf) == 0 {
		return 0
	}
	return buf[0]
}
