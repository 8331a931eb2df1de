package querycache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/castordb/castor/internal/column"
	"github.com/castordb/castor/internal/settings"
)

// SyntaxTree is the abstract-syntax-tree handle a cache key carries. The
// hash must be stable for a given tree shape; two trees are considered equal
// iff their hashes are.
type SyntaxTree interface {
	TreeHash() [2]uint64
}

// Key is the logical identity of a cacheable query: syntax tree, output
// schema, effective settings and requesting principal.
type Key struct {
	Tree     SyntaxTree
	Header   column.Header
	Settings settings.Settings
	User     string
}

const keyHashSeed = 0x5851f42d4c957f2d

// Hash combines all four key components through a keyed 64-bit mixer.
// Components are fed in a fixed order with separators; settings are iterated
// name-sorted so the hash is deterministic. Colliding keys are told apart by
// Equal.
func (k Key) Hash() uint64 {
	d := xxhash.NewWithSeed(keyHashSeed)
	var buf [8]byte
	th := k.Tree.TreeHash()
	binary.LittleEndian.PutUint64(buf[:], th[0])
	d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], th[1])
	d.Write(buf[:])
	d.WriteString("\x00")
	d.WriteString(k.Header.String())
	d.WriteString("\x00")
	for _, e := range k.Settings.Sorted() {
		d.WriteString(e.Name)
		d.WriteString("\x01")
		d.WriteString(e.Value)
		d.WriteString("\x02")
	}
	d.WriteString("\x00")
	d.WriteString(k.User)
	return d.Sum64()
}

// Equal is the conjunction of tree-hash, header, settings and identity
// equality.
func (k Key) Equal(other Key) bool {
	return k.Tree.TreeHash() == other.Tree.TreeHash() &&
		k.Header.Equal(other.Header) &&
		k.Settings.Equal(other.Settings) &&
		k.User == other.User
}
