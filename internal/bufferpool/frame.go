package bufferpool

// frame holds one cached page and all policy bookkeeping that might apply
// to it. Only the fields relevant to the pool's configured policy are kept
// meaningful; the rest sit idle, which costs nothing at this scale and keeps
// frame a single flat struct instead of a tagged union, per the pin
// algorithm's "sealed variant co-located in the pool" design.
type frame struct {
	pageNum  int
	buf      []byte
	dirty    bool
	fixCount int

	lruStamp uint64 // LRU: logical timestamp of the last access
	clockRef bool   // CLOCK: reference bit
	lfuFreq  uint64 // LFU: access frequency

	lrukHistory []int64 // LRU-K: ring of up to K access timestamps, oldest first
	lrukCount   int
}

func newFrame(pageSize, k int) *frame {
	return &frame{
		pageNum:     NoPage,
		buf:         make([]byte, pageSize),
		lrukHistory: newSentinelHistory(k),
	}
}

func newSentinelHistory(k int) []int64 {
	h := make([]int64, k)
	for i := range h {
		h[i] = -1
	}
	return h
}

// recordAccess appends ts to the frame's LRU-K history, shifting out the
// oldest entry once the ring is full.
func (f *frame) recordAccess(ts uint64) {
	if f.lrukCount < len(f.lrukHistory) {
		f.lrukHistory[f.lrukCount] = int64(ts)
		f.lrukCount++
		return
	}
	copy(f.lrukHistory, f.lrukHistory[1:])
	f.lrukHistory[len(f.lrukHistory)-1] = int64(ts)
}

func (f *frame) resetAccess(ts uint64) {
	f.lrukHistory = newSentinelHistory(len(f.lrukHistory))
	f.lrukCount = 0
	f.recordAccess(ts)
}
