package models

import "time"

type NodeType string

const (
	TypeSection   NodeType = "Section"
	TypeInputCell NodeType = "InputCell"
	TypeTextCell  NodeType = "TextCell"
)

func (t NodeType) Valid() bool {
	switch t {
	case TypeSection, TypeInputCell, TypeTextCell:
		return true
	}
	return false
}

// Node is one entity of a notebook tree. Exactly one of Section, InputCell
// and TextCell is set and it always matches Type; the store fixes the variant
// when the node is created.
type Node struct {
	ID           string    `db:"id"`
	Type         NodeType  `db:"node_type"`
	ParentID     string    `db:"-"` // lookup only, the parent Section owns its children
	Comment      string    `db:"comment"`
	Tags         []string  `db:"-"`
	DateCreated  time.Time `db:"created_at"`
	DateModified time.Time `db:"modified_at"`

	Section   *Section   `db:"-"`
	InputCell *InputCell `db:"-"`
	TextCell  *TextCell  `db:"-"`
}

type Section struct {
	Title    string
	Children []*Node
}

type InputCell struct {
	Input  string
	Output string
}

type TextCell struct {
	Format   string
	TextData string
}

func NewSection(title string) *Node {
	return &Node{Type: TypeSection, Section: &Section{Title: title}}
}

func NewInputCell(input string) *Node {
	return &Node{Type: TypeInputCell, InputCell: &InputCell{Input: input}}
}

func NewTextCell(format, text string) *Node {
	return &Node{Type: TypeTextCell, TextCell: &TextCell{Format: format, TextData: text}}
}

// NewNode returns an empty node of the given type, titled when it is a Section.
func NewNode(t NodeType, title string) (*Node, error) {
	switch t {
	case TypeSection:
		return NewSection(title), nil
	case TypeInputCell:
		return NewInputCell(""), nil
	case TypeTextCell:
		return NewTextCell("", ""), nil
	}
	return nil, invalidArgument("unknown node type %q", t)
}

// Children returns the node's children, nil for cells.
func (n *Node) Children() []*Node {
	if n.Section == nil {
		return nil
	}
	return n.Section.Children
}

func (n *Node) IsSection() bool {
	return n.Type == TypeSection && n.Section != nil
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	switch n.Type {
	case TypeSection:
		if n.Section != nil {
			s := &Section{Title: n.Section.Title}
			for _, child := range n.Section.Children {
				s.Children = append(s.Children, child.Clone())
			}
			c.Section = s
		}
	case TypeInputCell:
		if n.InputCell != nil {
			ic := *n.InputCell
			c.InputCell = &ic
		}
	case TypeTextCell:
		if n.TextCell != nil {
			tc := *n.TextCell
			c.TextCell = &tc
		}
	}
	return &c
}

type User struct {
	ID          string    `db:"id"`
	Username    string    `db:"username"`
	Email       string    `db:"email"`
	DateCreated time.Time `db:"created_at"`
}

type Role string

const (
	RoleWriter Role = "writer"
	RoleReader Role = "reader"
)

func (r Role) Valid() bool {
	return r == RoleWriter || r == RoleReader
}

// Notebook is the unit of sharing. Root is nil for summaries.
type Notebook struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	OwnerID      string    `db:"owner_id"`
	RootID       string    `db:"root_id"`
	DateCreated  time.Time `db:"created_at"`
	DateModified time.Time `db:"modified_at"`
	WriterIDs    []string  `db:"-"`
	ReaderIDs    []string  `db:"-"`
	Root         *Node     `db:"-"`
}

func (nb *Notebook) Clone() *Notebook {
	if nb == nil {
		return nil
	}
	c := *nb
	c.WriterIDs = append([]string(nil), nb.WriterIDs...)
	c.ReaderIDs = append([]string(nil), nb.ReaderIDs...)
	c.Root = nb.Root.Clone()
	return &c
}

// Summary drops the tree.
func (nb *Notebook) Summary() *Notebook {
	c := *nb
	c.WriterIDs = append([]string(nil), nb.WriterIDs...)
	c.ReaderIDs = append([]string(nil), nb.ReaderIDs...)
	c.Root = nil
	return &c
}

// ChangeEvent announces an accepted mutation of a notebook.
type ChangeEvent struct {
	NotebookID string    `json:"notebookId"`
	NodeID     string    `json:"nodeId,omitempty"`
	UserID     string    `json:"userId"`
	Kind       string    `json:"kind"`
	At         time.Time `json:"at"`
}

type AddNodeInput struct {
	UserID   string
	ParentID string
	Index    int
	Type     NodeType
	Title    string
}

type MoveNodeInput struct {
	UserID   string
	NodeID   string
	ParentID string
	Index    int
}

type EditNodeInput struct {
	UserID string
	NodeID string
	Field  string
	Value  string
}

type MemberInput struct {
	UserID     string
	NotebookID string
	TargetID   string
	Role       Role
}
