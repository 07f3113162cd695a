// Radix tree node storage, adapted from the teacher's
// diyredis/streams/radix.go "Array Mapped Tree" (AMT): a bitwise trie
// over the 22-digit base-64 internal key, with single-child runs
// compressed into extraChars. See that file's header comment for the
// full design rationale; the shape is unchanged here, only Entry's
// payload (ordered field/value pairs instead of `any`) differs, and
// rangeEntries is added for inclusive [from, to] walks.
package streamlog

import "math/bits"

// Field is one field/value pair within a stream entry, order-preserved.
type Field struct {
	Name  string
	Value string
}

// Entry is one stream record: an id plus its ordered fields.
type Entry struct {
	Key    Key
	Fields []Field
}

type rxNode struct {
	entry      *Entry
	bitmap     uint64
	extraChars []uint8
	children   []rxNode
}

func (n *rxNode) longestCommonPrefix(key internalKey) (bestMatch *rxNode, failIdx int, extraFailIdx int) {
	currentNode := n
	for depth := 0; ; depth++ {
		for i, char := range currentNode.extraChars {
			if char != key[depth+i] {
				return currentNode, depth + i, i
			}
		}
		depth += len(currentNode.extraChars)

		if depth == len(key) {
			return currentNode, -1, -1
		}

		bitmapOffset := key[depth]
		bitmask := uint64(1) << bitmapOffset
		if currentNode.bitmap&bitmask == 0 {
			return currentNode, depth, -1
		}
		currentNode = &currentNode.children[getChildIdx(currentNode.bitmap, bitmapOffset)]
	}
}

func (n *rxNode) create(key internalKey) *rxNode {
	node, failIdx, extraFailIdx := n.longestCommonPrefix(key)
	if failIdx == -1 {
		return node
	}

	var newNode *rxNode
	if extraFailIdx == -1 {
		bitmapOffset := key[failIdx]
		bitmask := uint64(1) << bitmapOffset
		node.bitmap |= bitmask
		childIdx := getChildIdx(node.bitmap, bitmapOffset)
		node.appendChild(childIdx)
		newNode = &node.children[childIdx]
	} else {
		splitNode := *node
		splitNode.extraChars = node.extraChars[extraFailIdx+1:]

		splitNodeOffset := node.extraChars[extraFailIdx]
		newNodeOffset := key[failIdx]
		if newNodeOffset > splitNodeOffset {
			node.children = []rxNode{splitNode, {}}
			newNode = &node.children[1]
		} else {
			node.children = []rxNode{{}, splitNode}
			newNode = &node.children[0]
		}
		node.extraChars = node.extraChars[:extraFailIdx]
		node.bitmap = uint64(1) << splitNodeOffset
		node.bitmap |= uint64(1) << newNodeOffset
		node.entry = nil
	}

	lastPartOfKey := key[failIdx+1:]
	if len(lastPartOfKey) > 0 {
		newNode.extraChars = make([]uint8, len(lastPartOfKey))
		copy(newNode.extraChars, lastPartOfKey)
	}

	return newNode
}

func (n *rxNode) appendChild(childIdx int) {
	if n.children == nil {
		n.children = []rxNode{{}}
		return
	}
	if len(n.children)+1 > cap(n.children) {
		newChildren := make([]rxNode, len(n.children)+1, cap(n.children)+2)
		copy(newChildren, n.children[:childIdx])
		copy(newChildren[childIdx+1:], n.children[childIdx:])
		n.children = newChildren
		return
	}
	n.children = n.children[:len(n.children)+1]
	copy(n.children[childIdx+1:], n.children[childIdx:])
	n.children[childIdx] = rxNode{}
}

// getAllLeaves returns every entry under n, ordered lowest to highest.
func (n *rxNode) getAllLeaves() []Entry {
	entries := make([]Entry, 0, 1)
	stack := []*rxNode{n}
	for len(stack) > 0 {
		var node *rxNode
		stack, node = stack[:len(stack)-1], stack[len(stack)-1]
		if node.entry != nil {
			entries = append(entries, *node.entry)
		} else {
			stack = appendPtrsReverse(stack, node.children)
		}
	}
	return entries
}

func appendPtrs(ptrSlice []*rxNode, slice []rxNode) []*rxNode {
	for i := range slice {
		ptrSlice = append(ptrSlice, &slice[i])
	}
	return ptrSlice
}

func appendPtrsReverse(ptrSlice []*rxNode, slice []rxNode) []*rxNode {
	for i := len(slice) - 1; i >= 0; i-- {
		ptrSlice = append(ptrSlice, &slice[i])
	}
	return ptrSlice
}

func getChildIdx(bitmap uint64, bitmapOffset uint8) int {
	if bitmapOffset == 0 {
		return 0
	}
	onesCountBitmask := MaxUint64 >> (64 - bitmapOffset)
	return bits.OnesCount64(bitmap & onesCountBitmask)
}

// higherSiblingsDFS returns nodes (highest to lowest) whose children all
// have a key >= key.
func (n *rxNode) higherSiblingsDFS(key internalKey) []*rxNode {
	result := []*rxNode{}
	currentNode := n
	for depth := 0; ; depth++ {
		for i, char := range currentNode.extraChars {
			if char < key[depth+i] {
				return result
			} else if char > key[depth+i] {
				return append(result, currentNode)
			}
		}
		depth += len(currentNode.extraChars)

		if depth == len(key) {
			return append(result, currentNode)
		}

		bitmapOffset := key[depth]
		bitmask := uint64(1) << bitmapOffset
		childIdx := getChildIdx(currentNode.bitmap, bitmapOffset)

		if currentNode.bitmap&bitmask == 0 {
			return appendPtrsReverse(result, currentNode.children[childIdx:])
		}
		result = appendPtrsReverse(result, currentNode.children[childIdx+1:])
		currentNode = &currentNode.children[childIdx]
	}
}

// lowerSiblingsDFS returns nodes (lowest to highest) whose children all
// have a key <= key.
func (n *rxNode) lowerSiblingsDFS(key internalKey) []*rxNode {
	result := []*rxNode{}
	currentNode := n
	for depth := 0; ; depth++ {
		for i, char := range currentNode.extraChars {
			if char > key[depth+i] {
				return result
			} else if char < key[depth+i] {
				return append(result, currentNode)
			}
		}
		depth += len(currentNode.extraChars)

		if depth == len(key) {
			return append(result, currentNode)
		}

		bitmapOffset := key[depth]
		bitmask := uint64(1) << bitmapOffset
		childIdx := getChildIdx(currentNode.bitmap, bitmapOffset)

		if currentNode.bitmap&bitmask == 0 {
			if childIdx == 0 {
				return result
			}
			return appendPtrs(result, currentNode.children[:childIdx])
		}
		result = appendPtrs(result, currentNode.children[:childIdx])
		currentNode = &currentNode.children[childIdx]
	}
}

func (n *rxNode) higherEntries(key internalKey) []Entry {
	higherNodes := n.higherSiblingsDFS(key)
	entries := make([]Entry, 0, len(higherNodes))
	for i := len(higherNodes) - 1; i >= 0; i-- {
		entries = append(entries, higherNodes[i].getAllLeaves()...)
	}
	return entries
}

func (n *rxNode) lowerEntries(key internalKey) []Entry {
	lowerNodes := n.lowerSiblingsDFS(key)
	entries := make([]Entry, 0, len(lowerNodes))
	for _, node := range lowerNodes {
		entries = append(entries, node.getAllLeaves()...)
	}
	return entries
}

// rangeEntries returns entries under n with a key in [fromKey, toKey],
// ordered lowest to highest.
func (n *rxNode) rangeEntries(fromKey, toKey internalKey) []Entry {
	currentNode := n
	for depth := 0; ; depth++ {
		for i, char := range currentNode.extraChars {
			fromSym := fromKey[depth+i]
			toSym := toKey[depth+i]

			if fromSym == toSym && toSym == char {
				continue
			}
			if fromSym == toSym {
				return []Entry{}
			}
			if fromSym < char && char < toSym {
				return currentNode.getAllLeaves()
			}
			if char < fromSym || toSym < char {
				return []Entry{}
			}
			if char == fromSym {
				return currentNode.higherEntries(fromKey[depth:])
			}
			if char == toSym {
				return currentNode.lowerEntries(toKey[depth:])
			}
		}
		depth += len(currentNode.extraChars)

		if depth == len(fromKey) {
			if currentNode.entry == nil {
				return []Entry{}
			}
			return []Entry{*currentNode.entry}
		}

		if fromKey[depth] == toKey[depth] {
			bitmapOffset := toKey[depth]
			bitmask := uint64(1) << bitmapOffset
			if currentNode.bitmap&bitmask == 0 {
				return []Entry{}
			}
			currentNode = &currentNode.children[getChildIdx(currentNode.bitmap, bitmapOffset)]
			continue
		}

		result := []Entry{}
		fromBitmask := uint64(1) << fromKey[depth]
		if currentNode.bitmap&fromBitmask != 0 {
			fromNode := currentNode.children[getChildIdx(currentNode.bitmap, fromKey[depth])]
			result = append(result, fromNode.higherEntries(fromKey[depth+1:])...)
		}

		for i := fromKey[depth] + 1; i < toKey[depth]; i++ {
			bitmask := uint64(1) << i
			if currentNode.bitmap&bitmask != 0 {
				child := currentNode.children[getChildIdx(currentNode.bitmap, i)]
				result = append(result, child.getAllLeaves()...)
			}
		}

		toBitmask := uint64(1) << toKey[depth]
		if currentNode.bitmap&toBitmask != 0 {
			toNode := currentNode.children[getChildIdx(currentNode.bitmap, toKey[depth])]
			result = append(result, toNode.lowerEntries(toKey[depth+1:])...)
		}

		return result
	}
}
