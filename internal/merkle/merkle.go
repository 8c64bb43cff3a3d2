// Package merkle implements the commitment scheme used by pack campaigns:
// SHA-256 leaves over (pack index, reward amount, salt) and binary trees
// padded with zero leaves to the next power of two.
//
// Padding leaves are well-known all-zero values. A proof against a padding
// position would verify, so callers must never accept an index at or beyond
// the campaign capacity; the service guarantees this by only claiming against
// receipts, which are created for indices below capacity.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"
)

// HashSize is the size of every node in the tree.
const HashSize = sha256.Size

// leafBufferSize is the fixed encoding of a leaf preimage:
// pack index (4 bytes LE) || amount (8 bytes LE) || salt (32 bytes).
const leafBufferSize = 44

// Leaf computes the leaf hash committing one pack's reward.
func Leaf(packIndex uint32, amount uint64, salt [32]byte) [32]byte {
	var buf [leafBufferSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], packIndex)
	binary.LittleEndian.PutUint64(buf[4:12], amount)
	copy(buf[12:44], salt[:])
	return sha256.Sum256(buf[:])
}

// Verify recomputes the root from leaf and the ordered bottom-to-top sibling
// hashes in proof. At each level the sibling goes on the right when the
// running index is even, on the left when odd.
func Verify(root [32]byte, leaf [32]byte, proof [][32]byte, index uint32) bool {
	current := leaf
	idx := index
	for _, sibling := range proof {
		if idx%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		idx /= 2
	}
	return current == root
}

func hashPair(left, right [32]byte) [32]byte {
	var combined [2 * HashSize]byte
	copy(combined[:HashSize], left[:])
	copy(combined[HashSize:], right[:])
	return sha256.Sum256(combined[:])
}

// Tree is the full reference tree built over a campaign's leaves. The
// operator uses it off-band to derive the published root and per-pack proofs.
type Tree struct {
	// levels[0] is the padded leaf level, levels[len-1] holds the root.
	levels [][][32]byte
	leaves int
}

// BuildTree builds the tree over the given leaves in pack-index order,
// padding with all-zero leaves up to the next power of two.
func BuildTree(leaves [][32]byte) *Tree {
	width := nextPowerOfTwo(len(leaves))
	level := make([][32]byte, width)
	copy(level, leaves)

	t := &Tree{leaves: len(leaves)}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([][32]byte, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the 32-byte commitment.
func (t *Tree) Root() [32]byte {
	return t.levels[len(t.levels)-1][0]
}

// Proof returns the sibling hashes for the leaf at index, ordered from the
// leaf level up. ok is false when index is outside the unpadded leaf range.
func (t *Tree) Proof(index uint32) (proof [][32]byte, ok bool) {
	if int(index) >= t.leaves {
		return nil, false
	}
	idx := int(index)
	for _, level := range t.levels[:len(t.levels)-1] {
		proof = append(proof, level[idx^1])
		idx /= 2
	}
	return proof, true
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
