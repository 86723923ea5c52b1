package models

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}

func (n *Node) Validate() error {
	switch n.Type {
	case TypeSection:
		if n.Section == nil || n.InputCell != nil || n.TextCell != nil {
			return fmt.Errorf("node %s: section payload mismatch", n.ID)
		}
	case TypeInputCell:
		if n.InputCell == nil || n.Section != nil || n.TextCell != nil {
			return fmt.Errorf("node %s: input cell payload mismatch", n.ID)
		}
	case TypeTextCell:
		if n.TextCell == nil || n.Section != nil || n.InputCell != nil {
			return fmt.Errorf("node %s: text cell payload mismatch", n.ID)
		}
	default:
		return fmt.Errorf("node %s: unknown type %q", n.ID, n.Type)
	}
	return nil
}

// Find returns the node with the given id, or nil.
func (nb *Notebook) Find(id string) *Node {
	var found *Node
	nb.Root.Walk(func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Parent returns the Section holding id in its children, nil for the root or
// an unknown id.
func (nb *Notebook) Parent(id string) *Node {
	var parent *Node
	nb.Root.Walk(func(n *Node) bool {
		if parent != nil {
			return false
		}
		for _, c := range n.Children() {
			if c.ID == id {
				parent = n
				return false
			}
		}
		return true
	})
	return parent
}

// FindContainingSection walks the ancestors of id, skipping the node itself,
// to the nearest Section.
func (nb *Notebook) FindContainingSection(id string) (*Node, error) {
	if nb.Find(id) == nil {
		return nil, notFound("node %s", id)
	}
	for p := nb.Parent(id); p != nil; p = nb.Parent(p.ID) {
		if p.IsSection() {
			return p, nil
		}
	}
	return nil, notFound("node %s has no containing section", id)
}

// ChildIndex is the 0-based position of childID among section's children.
func ChildIndex(section *Node, childID string) (int, error) {
	for i, c := range section.Children() {
		if c.ID == childID {
			return i, nil
		}
	}
	return -1, notFound("node %s is not a child of %s", childID, section.ID)
}

// IsDescendant reports whether id is ancestorID itself or lies below it.
func (nb *Notebook) IsDescendant(ancestorID, id string) bool {
	anc := nb.Find(ancestorID)
	if anc == nil {
		return false
	}
	found := false
	anc.Walk(func(n *Node) bool {
		if n.ID == id {
			found = true
		}
		return !found
	})
	return found
}

// Relink rewrites every ParentID from the tree structure.
func (nb *Notebook) Relink() {
	if nb.Root == nil {
		return
	}
	nb.Root.ParentID = ""
	nb.Root.Walk(func(n *Node) bool {
		for _, c := range n.Children() {
			c.ParentID = n.ID
		}
		return true
	})
}

func (nb *Notebook) section(id string) (*Node, error) {
	n := nb.Find(id)
	if n == nil {
		return nil, notFound("section %s", id)
	}
	if !n.IsSection() {
		return nil, invalidArgument("node %s is a %s, not a Section", id, n.Type)
	}
	return n, nil
}

// CheckInsert validates a gap index: 0 is before the first child and
// len(children) after the last.
func (nb *Notebook) CheckInsert(parentID string, index int) (*Node, error) {
	parent, err := nb.section(parentID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index > len(parent.Section.Children) {
		return nil, invalidPosition("gap %d outside 0..%d", index, len(parent.Section.Children))
	}
	return parent, nil
}

func (nb *Notebook) Insert(parentID string, index int, n *Node) error {
	parent, err := nb.CheckInsert(parentID, index)
	if err != nil {
		return err
	}
	n.ParentID = parent.ID
	parent.Section.Children = slices.Insert(parent.Section.Children, index, n)
	return nil
}

func (nb *Notebook) CheckDrop(id string) (*Node, error) {
	if nb.Root != nil && nb.Root.ID == id {
		return nil, ErrCannotDropRoot
	}
	n := nb.Find(id)
	if n == nil {
		return nil, notFound("node %s", id)
	}
	return n, nil
}

// Remove detaches id and its whole subtree.
func (nb *Notebook) Remove(id string) (*Node, error) {
	n, err := nb.CheckDrop(id)
	if err != nil {
		return nil, err
	}
	parent := nb.Parent(id)
	i, err := ChildIndex(parent, id)
	if err != nil {
		return nil, err
	}
	parent.Section.Children = slices.Delete(parent.Section.Children, i, i+1)
	n.ParentID = ""
	return n, nil
}

// CheckMove rejects moves of the root, moves into the node's own subtree and
// gap indexes outside the destination's current children.
func (nb *Notebook) CheckMove(id, parentID string, index int) error {
	if nb.Root != nil && nb.Root.ID == id {
		return invalidPosition("the root section cannot be moved")
	}
	if nb.Find(id) == nil {
		return notFound("node %s", id)
	}
	if id == parentID || nb.IsDescendant(id, parentID) {
		return fmt.Errorf("%w: %s cannot move under %s", ErrCycleDetected, id, parentID)
	}
	_, err := nb.CheckInsert(parentID, index)
	return err
}

// Move places id at gap index of parentID, index being measured before id is
// detached from its current section.
func (nb *Notebook) Move(id, parentID string, index int) error {
	if err := nb.CheckMove(id, parentID, index); err != nil {
		return err
	}
	oldParent := nb.Parent(id)
	oldIndex, err := ChildIndex(oldParent, id)
	if err != nil {
		return err
	}
	n, err := nb.Remove(id)
	if err != nil {
		return err
	}
	if oldParent.ID == parentID && oldIndex < index {
		index--
	}
	return nb.Insert(parentID, index, n)
}

// Replace swaps the stored node with the same id for n, keeping its place.
func (nb *Notebook) Replace(n *Node) error {
	if nb.Root != nil && nb.Root.ID == n.ID {
		n.ParentID = ""
		nb.Root = n
		nb.Relink()
		return nil
	}
	parent := nb.Parent(n.ID)
	if parent == nil {
		return notFound("node %s", n.ID)
	}
	i, err := ChildIndex(parent, n.ID)
	if err != nil {
		return err
	}
	n.ParentID = parent.ID
	parent.Section.Children[i] = n
	for _, c := range n.Children() {
		c.ParentID = n.ID
	}
	return nil
}

// AssembleTree links flat nodes into the tree under rootID. Nodes must carry
// ParentID and be ordered by position within their parent.
func AssembleTree(rootID string, nodes []*Node) (*Node, error) {
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	root, ok := byID[rootID]
	if !ok {
		return nil, notFound("root %s", rootID)
	}
	for _, n := range nodes {
		if n.ID == rootID {
			continue
		}
		parent, ok := byID[n.ParentID]
		if !ok || !parent.IsSection() {
			return nil, fmt.Errorf("node %s: parent %q is not a section of this notebook", n.ID, n.ParentID)
		}
		parent.Section.Children = append(parent.Section.Children, n)
	}
	return root, nil
}

// Validate checks the membership invariant and the shape of the tree.
func (nb *Notebook) Validate() error {
	var result *multierror.Error
	if slices.Contains(nb.WriterIDs, nb.OwnerID) || slices.Contains(nb.ReaderIDs, nb.OwnerID) {
		result = multierror.Append(result, fmt.Errorf("owner %s is also a collaborator", nb.OwnerID))
	}
	for _, w := range nb.WriterIDs {
		if slices.Contains(nb.ReaderIDs, w) {
			result = multierror.Append(result, fmt.Errorf("user %s is both writer and reader", w))
		}
	}
	if nb.Root != nil {
		if !nb.Root.IsSection() {
			result = multierror.Append(result, fmt.Errorf("root %s is not a section", nb.Root.ID))
		}
		seen := make(map[string]bool)
		nb.Root.Walk(func(n *Node) bool {
			if seen[n.ID] {
				result = multierror.Append(result, fmt.Errorf("node %s appears twice", n.ID))
			}
			seen[n.ID] = true
			if err := n.Validate(); err != nil {
				result = multierror.Append(result, err)
			}
			return true
		})
	}
	return result.ErrorOrNil()
}
