package boltstore

import (
	"encoding/binary"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

var (
	bucketMeta    = []byte("meta")
	bucketObjects = []byte("objects")
	bucketScripts = []byte("scripts")
)

// Keys in the meta bucket.
var (
	keyVersion = []byte("version")
	keyNextRef = []byte("nextref")
)

// schemaVersion is written to the meta bucket on every Open.
const schemaVersion = 1

// refToKey encodes ref as an 8-byte big-endian key, offset by 2^32 so the
// negative sentinels sort before every real object.
func refToKey(ref gamedb.DBRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef is the inverse of refToKey.
func keyToRef(b []byte) gamedb.DBRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.DBRef(int64(v) - 1<<32)
}

// intToKey encodes a script ID.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
