package session

// EditState follows one field of one node through an edit:
// Clean -> Editing -> Submitting -> Clean, or through Failed back to Clean
// on the next refresh.
type EditState int

const (
	Clean EditState = iota
	Editing
	Submitting
	Failed
)

func (e EditState) String() string {
	switch e {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Failed:
		return "failed"
	}
	return "clean"
}

type fieldKey struct {
	node  string
	field string
}
