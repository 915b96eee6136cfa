package badger

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes for different data types
const (
	documentPrefix   = "docrec"
	clusteringPrefix = "clurec"
	clusteringLatest = "clulatest"
)

// makeDocumentKey generates a key for a document by id.
func makeDocumentKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", documentPrefix, id))
}

// documentKeyPrefix is the iteration prefix for all document records.
func documentKeyPrefix() []byte {
	return []byte(documentPrefix + ":")
}

// makeClusteringKey generates a key for a clustering snapshot by version.
// The version is BigEndian so lexicographic iteration follows version order.
func makeClusteringKey(version uint64) []byte {
	prefix := clusteringPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], version)
	return buf
}

// makeClusteringLatestKey generates the key of the latest-version pointer.
func makeClusteringLatestKey() []byte {
	return []byte(clusteringLatest)
}
