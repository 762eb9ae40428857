package record

import "errors"

var (
	ErrUnknownDataType   = errors.New("record: unknown data type")
	ErrTableNotFound     = errors.New("record: table not found")
	ErrRecordNotFound    = errors.New("record: no record at that rid")
	ErrNoMoreTuples      = errors.New("record: no more tuples")
	ErrSerializeSchema   = errors.New("record: malformed schema text")
	ErrTableHandleClosed = errors.New("record: table handle closed")
)
