package storage

import (
	"crypto/rand"
	"fmt"
	"os"
	"sync"

	"github.com/relaydb/relaydb/internal/xerr"
)

// maxInsertRetries bounds how many times Insert will allocate a fresh
// page before giving up (spec §4.3).
const maxInsertRetries = 5

// diCacheEntry is one DataManager-level cached DataItem plus its own
// refcount, independent of (and layered above) the PageCache's
// page-level refcount (spec §3).
type diCacheEntry struct {
	item *DataItem
	refs int
}

// DataManager orchestrates the page cache, the write-ahead log, and
// the free-space index into the record-level operations the version
// manager builds on: read, insert, and the DataItem before/after
// update protocol (spec §4.3).
type DataManager struct {
	cache  *PageCache
	logger *Logger
	fsi    *FreeSpaceIndex

	mu    sync.Mutex
	items map[int64]*diCacheEntry
}

// OpenDataManager opens (or creates) the data file at dataPath and the
// log file at logPath, runs crash recovery if the previous session did
// not shut down cleanly, and rebuilds the free-space index by scanning
// every data page (spec §4.3).
func OpenDataManager(dataPath, logPath string, cacheCapacity int, tm RecoveryTxnManager) (*DataManager, error) {
	file, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open data file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("storage: stat data file: %w", err)
	}
	isNew := info.Size() == 0

	logger, err := OpenLogger(logPath)
	if err != nil {
		file.Close()
		return nil, err
	}

	cache := OpenPageCache(file, cacheCapacity)
	dm := &DataManager{
		cache:  cache,
		logger: logger,
		fsi:    NewFreeSpaceIndex(),
		items:  make(map[int64]*diCacheEntry),
	}

	if isNew {
		p := &Page{}
		p.initMarker(randNonce())
		if _, err := cache.NewPage(p); err != nil {
			return nil, err
		}
	} else {
		page1, err := cache.GetPage(uint32(PageNumberMeta))
		if err != nil {
			return nil, err
		}
		if !page1.cleanShutdown() {
			if err := Recover(cache, logger, tm); err != nil {
				return nil, fmt.Errorf("storage: recovery failed: %w", err)
			}
		}
		page1.initMarker(randNonce())
		cache.MarkDirty(uint32(PageNumberMeta))
		if err := cache.Release(uint32(PageNumberMeta)); err != nil {
			return nil, err
		}
	}

	total := cache.PageCount()
	for pgno := uint32(2); pgno <= total; pgno++ {
		page, err := cache.GetPage(pgno)
		if err != nil {
			return nil, err
		}
		dm.fsi.Add(pgno, page.Free())
		if err := cache.Release(pgno); err != nil {
			return nil, err
		}
	}

	return dm, nil
}

func randNonce() [8]byte {
	var n [8]byte
	if _, err := rand.Read(n[:]); err != nil {
		panic(fmt.Sprintf("storage: generating shutdown marker nonce: %v", err))
	}
	return n
}

// Read fetches the DataItem for uid. If its valid byte marks it
// invalid, the item is released and (nil, false, nil) is returned
// (spec §4.3).
func (dm *DataManager) Read(uid int64) (*DataItem, bool, error) {
	item, err := dm.fetch(uid)
	if err != nil {
		return nil, false, err
	}
	if !item.IsValid() {
		dm.release(uid)
		return nil, false, nil
	}
	return item, true, nil
}

func (dm *DataManager) fetch(uid int64) (*DataItem, error) {
	pgno := UIDPage(uid)
	offset := UIDOffset(uid)

	dm.mu.Lock()
	if e, ok := dm.items[uid]; ok {
		e.refs++
		dm.mu.Unlock()
		return e.item, nil
	}
	dm.mu.Unlock()

	page, err := dm.cache.GetPage(pgno)
	if err != nil {
		return nil, err
	}

	dm.mu.Lock()
	if e, ok := dm.items[uid]; ok {
		// Another goroutine already cached this uid while we were
		// loading the page; our pin is redundant, give it back.
		e.refs++
		item := e.item
		dm.mu.Unlock()
		_ = dm.cache.Release(pgno)
		return item, nil
	}
	item := wrapDataItem(dm, pgno, page, offset)
	dm.items[uid] = &diCacheEntry{item: item, refs: 1}
	dm.mu.Unlock()
	return item, nil
}

func (dm *DataManager) release(uid int64) {
	dm.mu.Lock()
	e, ok := dm.items[uid]
	if !ok {
		dm.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		dm.mu.Unlock()
		return
	}
	delete(dm.items, uid)
	pgno := e.item.pgno
	dm.mu.Unlock()

	if err := dm.cache.Release(pgno); err != nil {
		panic(fmt.Sprintf("storage: releasing page %d: %v", pgno, err))
	}
}

// Insert wraps data as a DataItem and writes it into a page with
// enough free space, logging the insert before mutating the page
// (write-ahead, spec §4.3, §5). Fails with ErrDataTooLarge if the
// wrapped record can't fit in one page at all, or ErrDatabaseBusy if
// no page can be found or allocated after maxInsertRetries attempts.
func (dm *DataManager) Insert(xid int64, data []byte) (int64, error) {
	raw := wrapRaw(data)
	if len(raw) > MaxPayload {
		return 0, xerr.ErrDataTooLarge
	}

	pgno, ok := dm.fsi.Select(len(raw))
	for i := 0; !ok && i < maxInsertRetries; i++ {
		newPgno, err := dm.cache.NewPage(NewOrdinaryPage())
		if err != nil {
			return 0, err
		}
		dm.fsi.Add(newPgno, MaxPayload)
		pgno, ok = dm.fsi.Select(len(raw))
	}
	if !ok {
		return 0, xerr.ErrDatabaseBusy
	}

	page, err := dm.cache.GetPage(pgno)
	if err != nil {
		return 0, err
	}
	offset := page.FSO()
	if err := dm.logger.Append(encodeInsertRecord(xid, pgno, offset, raw)); err != nil {
		dm.cache.Release(pgno)
		return 0, err
	}
	page.Append(raw)
	dm.cache.MarkDirty(pgno)
	free := page.Free()
	if err := dm.cache.Release(pgno); err != nil {
		return 0, err
	}
	dm.fsi.Add(pgno, free)

	return uidFor(pgno, offset), nil
}

// Close flushes the clean-shutdown marker and closes the log.
func (dm *DataManager) Close() error {
	page1, err := dm.cache.GetPage(uint32(PageNumberMeta))
	if err != nil {
		return err
	}
	page1.refreshCloseMarker()
	if err := dm.cache.Flush(uint32(PageNumberMeta), page1); err != nil {
		return err
	}
	if err := dm.cache.Release(uint32(PageNumberMeta)); err != nil {
		return err
	}
	return dm.logger.Close()
}
