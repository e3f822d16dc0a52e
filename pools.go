package astieit

import "sync"

// Largest packet size the packet buffer reads, timecode prefix included
const maxPacketSize = 192

// bytesPool recycles the buffers packets are read into. Payloads point into those buffers, so an item
// goes back to the pool once the demuxer has copied the sections it completed.
var bytesPool = &bytesPooler{
	sp: sync.Pool{
		New: func() interface{} { return &bytesPoolItem{s: make([]byte, maxPacketSize)} },
	},
}

type bytesPoolItem struct {
	s []byte
}

type bytesPooler struct {
	sp sync.Pool
}

// get returns an item holding exactly size bytes
func (bp *bytesPooler) get(size int) *bytesPoolItem {
	i := bp.sp.Get().(*bytesPoolItem)
	if cap(i.s) < size {
		i.s = make([]byte, size)
	}
	i.s = i.s[:size]
	return i
}

// put hands the item back. Neither the item nor packets parsed out of it may be used afterwards.
func (bp *bytesPooler) put(i *bytesPoolItem) {
	bp.sp.Put(i)
}
