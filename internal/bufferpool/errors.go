package bufferpool

import "errors"

var (
	ErrBufferPoolNotInit  = errors.New("bufferpool: not initialized")
	ErrPinnedPagesInBuffer = errors.New("bufferpool: pinned pages in buffer")
	ErrNonExistingPage    = errors.New("bufferpool: no frame holds that page")
)
