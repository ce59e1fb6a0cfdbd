package badger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/poiesic/assetpipe/storage"
)

// Key prefixes for different data types
const (
	collectionPrefix = "col"
	documentPrefix   = "doc"
	checkpointPrefix = "chk"
)

const maxCollectionNameLen = 255

// makeCollectionKey generates the catalog key for a collection.
// Format: col:name
func makeCollectionKey(name string) []byte {
	return []byte(collectionPrefix + ":" + name)
}

// makeDocumentPrefix generates the prefix shared by every document of a collection.
// Format: doc:collection:
func makeDocumentPrefix(collection string) []byte {
	return []byte(documentPrefix + ":" + collection + ":")
}

// makeDocumentKey generates a key for a document by identity.
// Format: doc:collection:id
func makeDocumentKey(collection, id string) []byte {
	prefix := makeDocumentPrefix(collection)
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id)
	return buf
}

// documentIDFromKey strips the collection prefix from a document key.
func documentIDFromKey(prefix, key []byte) string {
	return string(bytes.TrimPrefix(key, prefix))
}

// makeCheckpointKey generates a key for stage checkpoints.
// Format: chk:stage:collection
func makeCheckpointKey(stage, collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", checkpointPrefix, stage, collection))
}

// validateCollectionName applies the naming rules of the store: lowercase,
// no separators or wildcard characters, no leading -, _ or +.
func validateCollectionName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	case len(name) > maxCollectionNameLen:
		return fmt.Errorf("%w: longer than %d bytes", storage.ErrInvalidCollectionName, maxCollectionNameLen)
	case strings.ContainsAny(name[:1], "-_+"):
		return fmt.Errorf("%w: %q must not start with -, _ or +", storage.ErrInvalidCollectionName, name)
	case strings.ContainsAny(name, `\/*?"<>|, #:`):
		return fmt.Errorf("%w: %q contains a forbidden character", storage.ErrInvalidCollectionName, name)
	case strings.ToLower(name) != name:
		return fmt.Errorf("%w: %q must be lowercase", storage.ErrInvalidCollectionName, name)
	}
	return nil
}
