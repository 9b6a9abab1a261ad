// Exemple d'utilisation de relaydb.
// Démontre begin/insert/commit puis une relecture dans une nouvelle
// transaction.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/relaydb/relaydb"
	"github.com/relaydb/relaydb/mvcc"
	"github.com/relaydb/relaydb/storage"
)

func main() {
	const dbPath = "example"
	defer cleanup(dbPath)

	store, err := relaydb.Open(relaydb.Options{Path: dbPath, Cache: storage.MinCacheCapacity})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("=== relaydb — basic round-trip ===")

	xid, err := store.Begin(mvcc.ReadCommitted)
	if err != nil {
		log.Fatal(err)
	}
	uid, err := store.Insert(xid, []byte("hello"))
	if err != nil {
		log.Fatal(err)
	}
	if err := store.Commit(xid); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("inserted uid=%d under xid=%d\n", uid, xid)

	reader, err := store.Begin(mvcc.ReadCommitted)
	if err != nil {
		log.Fatal(err)
	}
	data, ok, err := store.Read(reader, uid)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("read-back: ok=%v data=%q\n", ok, data)
	if err := store.Commit(reader); err != nil {
		log.Fatal(err)
	}
}

func cleanup(path string) {
	os.Remove(path + ".db")
	os.Remove(path + ".log")
	os.Remove(path + ".xid")
	os.Remove(path + ".lock")
}
