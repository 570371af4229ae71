package heap

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// DetailedMapJson populates a json object with the heap's totals and every
// range currently on the free list. Walking the list for this is slow by
// design; it exists for diagnostics, not steady-state use.
func (h *Heap) DetailedMapJson(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(h.Size())
	json.Name("UsableBytes").Int(h.UsableSize())
	json.Name("Extents").Int(h.extents)
	json.Name("FreeBytes").Int(h.SumFreeSize())

	freeRanges := json.Name("FreeRanges").Array()
	if h.hdr != nil {
		for curr := h.hdr.firstFree; curr != nil; curr = curr.next {
			obj := freeRanges.Object()
			obj.Name("Address").String(fmt.Sprintf("%#x", curr.addr()))
			obj.Name("Size").Int(curr.size)
			obj.End()
		}
	}
	freeRanges.End()
}
