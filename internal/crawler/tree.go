package crawler

import (
	"encoding/json"

	"github.com/JakeFAU/hnmirror/internal/hn"
)

// Tree is an item with its children resolved, in the order the parent lists them.
type Tree struct {
	Item     hn.Item
	Children []*Tree
}

// ID returns the external id of the root item.
func (t *Tree) ID() int64 { return t.Item.Meta().ID }

// Kind returns the kind of the root item.
func (t *Tree) Kind() hn.Kind { return t.Item.Kind() }

// Count returns the number of items in the tree, root included.
func (t *Tree) Count() int {
	n := 1
	for _, c := range t.Children {
		n += c.Count()
	}
	return n
}

// MarshalJSON flattens the item fields next to its type and resolved children.
func (t *Tree) MarshalJSON() ([]byte, error) {
	item, err := json.Marshal(t.Item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type     hn.Kind         `json:"type"`
		Item     json.RawMessage `json:"item"`
		Children []*Tree         `json:"children,omitempty"`
	}{
		Type:     t.Kind(),
		Item:     item,
		Children: t.Children,
	})
}

// Walk visits every node depth-first, parents before children.
func Walk(trees []*Tree, fn func(*Tree)) {
	for _, t := range trees {
		fn(t)
		Walk(t.Children, fn)
	}
}

// CountItems returns the total number of items across a forest.
func CountItems(trees []*Tree) int {
	n := 0
	for _, t := range trees {
		n += t.Count()
	}
	return n
}
