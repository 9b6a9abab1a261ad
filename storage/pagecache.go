package storage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relaydb/relaydb/internal/xerr"
)

// MinCacheCapacity is the smallest page-cache capacity relaydb will
// run with; anything below this is a fatal configuration error (spec
// §4.1, §6 — "Capacity below 10 is fatal").
const MinCacheCapacity = 10

// cacheEntry is one resident page plus its reference count and dirty
// flag. Replaces the teacher's lruNode: there is no recency list here
// — residency is governed entirely by refcount, not access order.
type cacheEntry struct {
	page  *Page
	refs  int
	dirty bool
}

// PageCache is a fixed-capacity, reference-counted cache of pages
// backed by a single data file. Unlike the teacher's lruCache it never
// evicts a page out from under a live reference: a page can only leave
// the cache when its refcount drops to zero in Release. Two locks are
// used: mu guards the entries/loading maps, ioMu serializes file I/O
// so that a slow read or write by one goroutine does not block map
// operations for others (spec §4.1, §5).
type PageCache struct {
	mu      sync.Mutex // guards entries, loading, pageCount, hit/miss counters
	ioMu    sync.Mutex // serializes file I/O, held separately from mu
	file    *os.File
	entries map[uint32]*cacheEntry
	loading map[uint32]bool

	capacity  int
	pageCount uint32

	hits   uint64
	misses uint64
}

// OpenPageCache wraps file in a PageCache with the given capacity
// (number of pages). capacity below MinCacheCapacity is a fatal
// misconfiguration, matching spec §6's MemTooSmall contract.
func OpenPageCache(file *os.File, capacity int) *PageCache {
	if capacity < MinCacheCapacity {
		panic(fmt.Sprintf("storage: page cache capacity %d below minimum %d", capacity, MinCacheCapacity))
	}
	info, err := file.Stat()
	if err != nil {
		panic(fmt.Sprintf("storage: stat data file: %v", err))
	}
	pc := &PageCache{
		file:     file,
		entries:  make(map[uint32]*cacheEntry, capacity),
		loading:  make(map[uint32]bool),
		capacity: capacity,
	}
	pc.pageCount = uint32(info.Size() / PageSize)
	return pc
}

// PageCount returns the number of pages currently allocated in the
// data file, including page 1 (the marker page).
func (pc *PageCache) PageCount() uint32 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.pageCount
}

// GetPage returns the page numbered pgno (1-based), incrementing its
// refcount. If another goroutine is already loading the same page
// this call sleeps briefly and retries (spec §4.1, §5 — no condition
// variable, contention on a given page is expected to be rare).
// Fails with ErrCacheFull when capacity is exhausted and pgno is not
// already resident.
func (pc *PageCache) GetPage(pgno uint32) (*Page, error) {
	for {
		pc.mu.Lock()
		if e, ok := pc.entries[pgno]; ok {
			e.refs++
			pc.hits++
			pc.mu.Unlock()
			return e.page, nil
		}
		if pc.loading[pgno] {
			pc.mu.Unlock()
			time.Sleep(time.Millisecond)
			continue
		}
		if len(pc.entries) >= pc.capacity {
			pc.mu.Unlock()
			return nil, xerr.ErrCacheFull
		}
		pc.misses++
		pc.loading[pgno] = true
		pc.mu.Unlock()

		page := &Page{}
		pc.ioMu.Lock()
		_, err := pc.file.ReadAt(page.Data[:], int64(pgno-1)*PageSize)
		pc.ioMu.Unlock()

		pc.mu.Lock()
		delete(pc.loading, pgno)
		if err != nil {
			pc.mu.Unlock()
			return nil, fmt.Errorf("storage: read page %d: %w", pgno, err)
		}
		pc.entries[pgno] = &cacheEntry{page: page, refs: 1}
		pc.mu.Unlock()
		return page, nil
	}
}

// MarkDirty flags pgno so that its next Release-to-zero writes it
// back to disk. Callers must already hold a reference obtained from
// GetPage.
func (pc *PageCache) MarkDirty(pgno uint32) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if e, ok := pc.entries[pgno]; ok {
		e.dirty = true
	}
}

// Release decrements pgno's refcount. At zero, a dirty page is
// written back to disk and its entry is dropped from the cache.
func (pc *PageCache) Release(pgno uint32) error {
	pc.mu.Lock()
	e, ok := pc.entries[pgno]
	if !ok {
		pc.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		pc.mu.Unlock()
		return nil
	}
	delete(pc.entries, pgno)
	dirty := e.dirty
	page := e.page
	pc.mu.Unlock()

	if dirty {
		return pc.writeThrough(pgno, page)
	}
	return nil
}

// NewPage atomically reserves the next page number, writes init to
// disk immediately (so the file length grows deterministically), and
// returns the new page number without inserting it into the cache.
func (pc *PageCache) NewPage(init *Page) (uint32, error) {
	pc.mu.Lock()
	pgno := pc.pageCount + 1
	pc.pageCount = pgno
	pc.mu.Unlock()

	if err := pc.writeThrough(pgno, init); err != nil {
		pc.mu.Lock()
		pc.pageCount--
		pc.mu.Unlock()
		return 0, err
	}
	return pgno, nil
}

// Flush forces page's current contents to disk at pgno's offset,
// independent of the refcount/dirty protocol — used by recovery to
// write pages it mutates directly.
func (pc *PageCache) Flush(pgno uint32, page *Page) error {
	return pc.writeThrough(pgno, page)
}

func (pc *PageCache) writeThrough(pgno uint32, page *Page) error {
	pc.ioMu.Lock()
	defer pc.ioMu.Unlock()
	_, err := pc.file.WriteAt(page.Data[:], int64(pgno-1)*PageSize)
	if err != nil {
		return fmt.Errorf("storage: write page %d: %w", pgno, err)
	}
	return nil
}

// TruncateTo shrinks the data file to exactly maxPgno pages (at least
// one). Used by recovery after scanning the log for the highest
// referenced page number.
func (pc *PageCache) TruncateTo(maxPgno uint32) error {
	if maxPgno < 1 {
		maxPgno = 1
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.file.Truncate(int64(maxPgno) * PageSize); err != nil {
		return fmt.Errorf("storage: truncate to %d pages: %w", maxPgno, err)
	}
	pc.pageCount = maxPgno
	return nil
}

// Stats reports cache hit/miss counters and current occupancy,
// carried forward from the teacher's lruCache instrumentation.
func (pc *PageCache) Stats() (hits, misses uint64, size, capacity int) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.hits, pc.misses, len(pc.entries), pc.capacity
}
