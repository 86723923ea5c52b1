package models

const (
	FieldComment  = "comment"
	FieldTitle    = "title"
	FieldInput    = "input"
	FieldOutput   = "output"
	FieldFormat   = "format"
	FieldTextData = "textData"
)

// Fields lists the editable fields of a node type.
func Fields(t NodeType) []string {
	switch t {
	case TypeSection:
		return []string{FieldComment, FieldTitle}
	case TypeInputCell:
		return []string{FieldComment, FieldInput, FieldOutput}
	case TypeTextCell:
		return []string{FieldComment, FieldFormat, FieldTextData}
	}
	return nil
}

func (n *Node) Field(name string) (string, error) {
	if name == FieldComment {
		return n.Comment, nil
	}
	switch n.Type {
	case TypeSection:
		if name == FieldTitle {
			return n.Section.Title, nil
		}
	case TypeInputCell:
		switch name {
		case FieldInput:
			return n.InputCell.Input, nil
		case FieldOutput:
			return n.InputCell.Output, nil
		}
	case TypeTextCell:
		switch name {
		case FieldFormat:
			return n.TextCell.Format, nil
		case FieldTextData:
			return n.TextCell.TextData, nil
		}
	}
	return "", invalidArgument("%s has no field %q", n.Type, name)
}

func (n *Node) SetField(name, value string) error {
	if name == FieldComment {
		n.Comment = value
		return nil
	}
	switch n.Type {
	case TypeSection:
		if name == FieldTitle {
			n.Section.Title = value
			return nil
		}
	case TypeInputCell:
		switch name {
		case FieldInput:
			n.InputCell.Input = value
			return nil
		case FieldOutput:
			n.InputCell.Output = value
			return nil
		}
	case TypeTextCell:
		switch name {
		case FieldFormat:
			n.TextCell.Format = value
			return nil
		case FieldTextData:
			n.TextCell.TextData = value
			return nil
		}
	}
	return invalidArgument("%s has no field %q", n.Type, name)
}
