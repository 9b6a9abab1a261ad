// Package locktable implements relaydb's row-level lock table: a
// wait-for graph over (transaction, uid) pairs with fair FIFO wake-up
// and timestamped-DFS deadlock detection, in the same
// mutex-plus-map-of-gates idiom the teacher's own record lock manager
// uses, generalized from one writer-per-record to an explicit
// wait-for graph so cycles can be detected before a caller blocks.
package locktable

import (
	"sync"

	"github.com/relaydb/relaydb/internal/xerr"
)

// Gate is a one-shot wake-up signal handed to a caller that must wait
// for a uid currently held by another transaction. The caller blocks
// on Wait(); ReleaseAll opens exactly one waiter's gate per uid, in
// FIFO order.
type Gate struct {
	ch chan struct{}
}

// Wait blocks until the gate is opened.
func (g *Gate) Wait() { <-g.ch }

func newGate() *Gate { return &Gate{ch: make(chan struct{})} }

func (g *Gate) open() { close(g.ch) }

// LockTable tracks, for every live uid, who owns it and who is
// waiting, and for every transaction, what it currently holds and (at
// most one) what it is blocked on — exactly the state spec §4.7
// describes: held, owner, wait_queue, waiting_for.
type LockTable struct {
	mu sync.Mutex

	held       map[int64]map[int64]struct{} // xid -> uids it holds
	owner      map[int64]int64              // uid -> holding xid
	waitQueue  map[int64][]int64            // uid -> waiting xids, FIFO
	waitingFor map[int64]int64              // xid -> uid it is blocked on
	gates      map[int64]*Gate              // xid -> its wait gate, while blocked

	stamp int64 // monotonically increasing DFS visit stamp
}

// New returns an empty lock table.
func New() *LockTable {
	return &LockTable{
		held:       make(map[int64]map[int64]struct{}),
		owner:      make(map[int64]int64),
		waitQueue:  make(map[int64][]int64),
		waitingFor: make(map[int64]int64),
		gates:      make(map[int64]*Gate),
	}
}

// Acquire attempts to grant xid the lock on uid. If xid already holds
// it, or uid is currently free, ownership is recorded and (nil, nil)
// is returned: no wait needed. Otherwise xid is enqueued as a waiter
// and a cycle check runs immediately; a cycle rolls the wait edge back
// and returns ErrDeadlock. Otherwise a fresh gate is returned for the
// caller to block on outside the table's mutex.
func (lt *LockTable) Acquire(xid, uid int64) (*Gate, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if xids, ok := lt.held[xid]; ok {
		if _, already := xids[uid]; already {
			return nil, nil
		}
	}

	holder, held := lt.owner[uid]
	if !held {
		lt.grant(xid, uid)
		return nil, nil
	}
	if holder == xid {
		lt.grant(xid, uid)
		return nil, nil
	}

	lt.waitQueue[uid] = append(lt.waitQueue[uid], xid)
	lt.waitingFor[xid] = uid

	if lt.hasCycle(xid) {
		lt.undoWait(xid, uid)
		return nil, xerr.ErrDeadlock
	}

	gate := newGate()
	lt.gates[xid] = gate
	return gate, nil
}

func (lt *LockTable) grant(xid, uid int64) {
	if lt.held[xid] == nil {
		lt.held[xid] = make(map[int64]struct{})
	}
	lt.held[xid][uid] = struct{}{}
	lt.owner[uid] = xid
}

// undoWait removes xid from uid's wait queue and clears its
// waiting-for edge, used when a freshly registered wait would create
// a cycle.
func (lt *LockTable) undoWait(xid, uid int64) {
	delete(lt.waitingFor, xid)
	q := lt.waitQueue[uid]
	for i, w := range q {
		if w == xid {
			lt.waitQueue[uid] = append(q[:i], q[i+1:]...)
			break
		}
	}
}

// hasCycle runs a timestamped DFS starting from start, following
// start -> waitingFor[start] -> owner[uid] -> waitingFor[owner] -> ...
// Each call bumps the global stamp and tags visited xids with it;
// revisiting an xid already tagged with the current stamp means a
// cycle exists. The visited map is fresh for every call, so no xid
// carries an older stamp and nothing is pruned across calls (spec
// §4.7).
func (lt *LockTable) hasCycle(start int64) bool {
	lt.stamp++
	stamp := lt.stamp
	visited := make(map[int64]int64)

	xid := start
	for {
		if s, seen := visited[xid]; seen {
			return s == stamp
		}
		visited[xid] = stamp

		uid, waiting := lt.waitingFor[xid]
		if !waiting {
			return false
		}
		holder, held := lt.owner[uid]
		if !held {
			return false
		}
		xid = holder
	}
}

// ReleaseAll drops every lock xid holds. For each uid it held, the
// first still-waiting xid in that uid's queue (if any) is granted
// ownership and its gate opened — fair FIFO hand-off (spec §4.7).
// All of xid's own rows (held, any residual wait edge) are cleared.
func (lt *LockTable) ReleaseAll(xid int64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	for uid := range lt.held[xid] {
		delete(lt.owner, uid)
		q := lt.waitQueue[uid]
		for len(q) > 0 {
			next := q[0]
			q = q[1:]
			if _, stillWaiting := lt.waitingFor[next]; !stillWaiting {
				continue
			}
			delete(lt.waitingFor, next)
			lt.grant(next, uid)
			if gate, ok := lt.gates[next]; ok {
				gate.open()
				delete(lt.gates, next)
			}
			break
		}
		if len(q) == 0 {
			delete(lt.waitQueue, uid)
		} else {
			lt.waitQueue[uid] = q
		}
	}
	delete(lt.held, xid)
	delete(lt.waitingFor, xid)
	delete(lt.gates, xid)
}
