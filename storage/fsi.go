package storage

import "sync"

// fsiBuckets is the number of free-space buckets (spec §4.9: 41
// buckets indexed by free_space / (PageSize/40)).
const fsiBuckets = 41

// fsiThreshold is the bucket width in bytes.
const fsiThreshold = PageSize / 40

// pageSlot is one entry in a free-space bucket: a page number paired
// with how much free space it had when added. Modeled as a singly
// linked list node, in the same hand-rolled-list idiom the teacher
// used for its page cache (storage/lru.go) rather than reaching for
// container/list — the list here is a simple LIFO-order stack per
// bucket, nothing in the pack offers a ready-made bucketed free-space
// index so this stays minimal stdlib.
type pageSlot struct {
	pgno uint32
	free int
	next *pageSlot
}

// FreeSpaceIndex is an in-memory index of per-page free space, bucketed
// for fast allocation (spec §4.9). A page removed by Select is not
// concurrently handed out again until the caller calls Add to put it
// back — this is what makes a selected page exclusively writable.
type FreeSpaceIndex struct {
	mu      sync.Mutex
	buckets [fsiBuckets]*pageSlot
}

// NewFreeSpaceIndex returns an empty index.
func NewFreeSpaceIndex() *FreeSpaceIndex {
	return &FreeSpaceIndex{}
}

func bucketFor(free int) int {
	idx := free / fsiThreshold
	if idx >= fsiBuckets {
		idx = fsiBuckets - 1
	}
	return idx
}

// Add registers pgno as having free bytes of free space, pushing it
// onto the front of its bucket.
func (f *FreeSpaceIndex) Add(pgno uint32, free int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := bucketFor(free)
	f.buckets[b] = &pageSlot{pgno: pgno, free: free, next: f.buckets[b]}
}

// Select finds and removes the first page with at least need bytes
// free. Per spec §4.9, the scan starts one bucket above need's own
// (idx = need/threshold + 1) and proceeds upward — a page is handed
// out from the first non-empty bucket found, not from the tightest
// fit. Returns (0, false) if no page qualifies; the caller must then
// allocate a fresh page.
func (f *FreeSpaceIndex) Select(need int) (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := need/fsiThreshold + 1
	for ; idx < fsiBuckets; idx++ {
		if pg, ok := popFirstFitting(&f.buckets[idx], need); ok {
			return pg, true
		}
	}
	return 0, false
}

// popFirstFitting removes and returns the first node in the list
// headed by *head whose free space is >= need.
func popFirstFitting(head **pageSlot, need int) (uint32, bool) {
	prev := (*pageSlot)(nil)
	cur := *head
	for cur != nil {
		if cur.free >= need {
			if prev == nil {
				*head = cur.next
			} else {
				prev.next = cur.next
			}
			return cur.pgno, true
		}
		prev = cur
		cur = cur.next
	}
	return 0, false
}
