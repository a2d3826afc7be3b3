// Package homescreen holds the home-screen sibling of the task panel: its launcher item
// ordering and the session-bus "open terminal" request.
package homescreen

// Item is a node in the home screen's item tree. Children are kept in stacking order,
// bottom first.
type Item struct {
	Name     string
	parent   *Item
	children []*Item
}

// NewItem creates a detached item.
func NewItem(name string) *Item {
	return &Item{Name: name}
}

// Parent returns the item's parent, or nil.
func (i *Item) Parent() *Item {
	return i.parent
}

// Children returns a copy of the children in stacking order.
func (i *Item) Children() []*Item {
	return append([]*Item(nil), i.children...)
}

// Append reparents child to the top of i's stack.
func (i *Item) Append(child *Item) {
	if child == nil || child == i {
		return
	}
	if child.parent != nil {
		child.parent.remove(child)
	}
	child.parent = i
	i.children = append(i.children, child)
}

func (i *Item) remove(child *Item) {
	idx := i.indexOf(child)
	if idx < 0 {
		return
	}
	i.children = append(i.children[:idx], i.children[idx+1:]...)
}

func (i *Item) indexOf(child *Item) int {
	for idx, c := range i.children {
		if c == child {
			return idx
		}
	}
	return -1
}

// StackBefore moves item directly below sibling. Nil, identical or non-sibling items are
// left untouched; the return value reports whether anything was reordered.
func StackBefore(item, sibling *Item) bool {
	if !siblings(item, sibling) {
		return false
	}
	p := item.parent
	p.remove(item)
	p.insertAt(p.indexOf(sibling), item)
	return true
}

// StackAfter moves item directly above sibling, with the same guards as StackBefore.
func StackAfter(item, sibling *Item) bool {
	if !siblings(item, sibling) {
		return false
	}
	p := item.parent
	p.remove(item)
	p.insertAt(p.indexOf(sibling)+1, item)
	return true
}

func siblings(a, b *Item) bool {
	return a != nil && b != nil && a != b && a.parent != nil && a.parent == b.parent
}

func (i *Item) insertAt(idx int, child *Item) {
	i.children = append(i.children, nil)
	copy(i.children[idx+1:], i.children[idx:])
	i.children[idx] = child
}
