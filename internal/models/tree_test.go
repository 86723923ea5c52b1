package models_test

import (
	"testing"

	"dovakin0007.com/notebook-grpc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// root
//   s1
//     c1
//     s2
//       c2
//   t1
func buildNotebook() *models.Notebook {
	root := models.NewSection("root")
	root.ID = "root"
	s1 := models.NewSection("s1")
	s1.ID = "s1"
	c1 := models.NewInputCell("1+1")
	c1.ID = "c1"
	s2 := models.NewSection("s2")
	s2.ID = "s2"
	c2 := models.NewInputCell("2+2")
	c2.ID = "c2"
	t1 := models.NewTextCell("markdown", "hello")
	t1.ID = "t1"

	s2.Section.Children = []*models.Node{c2}
	s1.Section.Children = []*models.Node{c1, s2}
	root.Section.Children = []*models.Node{s1, t1}

	nb := &models.Notebook{ID: "nb", OwnerID: "owner", RootID: "root", Root: root}
	nb.Relink()
	return nb
}

func childIDs(n *models.Node) []string {
	var ids []string
	for _, c := range n.Children() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestFindContainingSection(t *testing.T) {
	nb := buildNotebook()

	sec, err := nb.FindContainingSection("c2")
	require.NoError(t, err)
	assert.Equal(t, "s2", sec.ID)

	sec, err = nb.FindContainingSection("s2")
	require.NoError(t, err)
	assert.Equal(t, "s1", sec.ID, "a section's containing section is its parent, not itself")

	_, err = nb.FindContainingSection("root")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = nb.FindContainingSection("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChildIndex(t *testing.T) {
	nb := buildNotebook()
	s1 := nb.Find("s1")

	i, err := models.ChildIndex(s1, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = models.ChildIndex(s1, "t1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInsertGapIndex(t *testing.T) {
	nb := buildNotebook()

	first := models.NewTextCell("", "")
	first.ID = "first"
	require.NoError(t, nb.Insert("root", 0, first))

	last := models.NewInputCell("")
	last.ID = "last"
	require.NoError(t, nb.Insert("root", 3, last))

	assert.Equal(t, []string{"first", "s1", "t1", "last"}, childIDs(nb.Root))
	assert.Equal(t, "root", last.ParentID)

	err := nb.Insert("root", 5, models.NewInputCell(""))
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
	err = nb.Insert("root", -1, models.NewInputCell(""))
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
	err = nb.Insert("c1", 0, models.NewInputCell(""))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRemoveSubtree(t *testing.T) {
	nb := buildNotebook()

	removed, err := nb.Remove("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", removed.ID)
	assert.Nil(t, nb.Find("c2"))
	assert.Equal(t, []string{"t1"}, childIDs(nb.Root))

	_, err = nb.Remove("root")
	assert.ErrorIs(t, err, models.ErrCannotDropRoot)
}

func TestMoveIntoOwnSubtreeIsRejected(t *testing.T) {
	nb := buildNotebook()
	before := nb.Clone()

	err := nb.Move("s1", "s2", 0)
	assert.ErrorIs(t, err, models.ErrCycleDetected)
	err = nb.Move("s1", "s1", 0)
	assert.ErrorIs(t, err, models.ErrCycleDetected)

	assert.Equal(t, before, nb)
}

func TestMoveWithinSameSection(t *testing.T) {
	nb := buildNotebook()
	extra := models.NewInputCell("")
	extra.ID = "extra"
	require.NoError(t, nb.Insert("root", 2, extra))

	// gap 3 is after "extra" as seen before s1 is detached
	require.NoError(t, nb.Move("s1", "root", 3))
	assert.Equal(t, []string{"t1", "extra", "s1"}, childIDs(nb.Root))

	require.NoError(t, nb.Move("s1", "root", 0))
	assert.Equal(t, []string{"s1", "t1", "extra"}, childIDs(nb.Root))
}

func TestMoveAcrossSections(t *testing.T) {
	nb := buildNotebook()

	require.NoError(t, nb.Move("t1", "s2", 1))
	assert.Equal(t, []string{"c2", "t1"}, childIDs(nb.Find("s2")))
	assert.Equal(t, "s2", nb.Find("t1").ParentID)

	err := nb.Move("c1", "s2", 5)
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
	err = nb.Move("root", "s1", 0)
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
}

func TestReplaceKeepsPosition(t *testing.T) {
	nb := buildNotebook()

	fresh := models.NewInputCell("3+3")
	fresh.ID = "c1"
	fresh.InputCell.Output = "6"
	require.NoError(t, nb.Replace(fresh))

	s1 := nb.Find("s1")
	assert.Equal(t, []string{"c1", "s2"}, childIDs(s1))
	assert.Equal(t, "6", nb.Find("c1").InputCell.Output)

	ghost := models.NewInputCell("")
	ghost.ID = "ghost"
	assert.ErrorIs(t, nb.Replace(ghost), models.ErrNotFound)
}

func TestAssembleTree(t *testing.T) {
	root := models.NewSection("root")
	root.ID = "r"
	a := models.NewSection("a")
	a.ID, a.ParentID = "a", "r"
	b := models.NewInputCell("")
	b.ID, b.ParentID = "b", "a"
	c := models.NewTextCell("", "")
	c.ID, c.ParentID = "c", "r"

	tree, err := models.AssembleTree("r", []*models.Node{root, a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, childIDs(tree))
	assert.Equal(t, []string{"b"}, childIDs(a))

	orphan := models.NewInputCell("")
	orphan.ID, orphan.ParentID = "o", "b"
	_, err = models.AssembleTree("r", []*models.Node{models.NewSection(""), orphan})
	assert.Error(t, err)
}

func TestValidateMembership(t *testing.T) {
	nb := buildNotebook()
	require.NoError(t, nb.Validate())

	nb.WriterIDs = []string{"owner", "u1"}
	nb.ReaderIDs = []string{"u1"}
	err := nb.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner owner is also a collaborator")
	assert.Contains(t, err.Error(), "user u1 is both writer and reader")
}

func TestMembers(t *testing.T) {
	nb := buildNotebook()

	require.NoError(t, nb.AddMember("u1", models.RoleReader))
	assert.ErrorIs(t, nb.AddMember("u1", models.RoleReader), models.ErrAlreadyMember)
	assert.ErrorIs(t, nb.AddMember("owner", models.RoleWriter), models.ErrAlreadyMember)

	require.NoError(t, nb.AddMember("u1", models.RoleWriter))
	assert.Equal(t, []string{"u1"}, nb.WriterIDs)
	assert.Empty(t, nb.ReaderIDs)

	assert.ErrorIs(t, nb.RemoveMember("u1", models.RoleReader), models.ErrNotFound)
	require.NoError(t, nb.RemoveMember("u1", models.RoleWriter))
	assert.Empty(t, nb.WriterIDs)
}

func TestEditFields(t *testing.T) {
	nb := buildNotebook()
	c1 := nb.Find("c1")

	require.NoError(t, c1.SetField(models.FieldInput, "print(1)"))
	v, err := c1.Field(models.FieldInput)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", v)

	assert.ErrorIs(t, c1.SetField(models.FieldTitle, "x"), models.ErrInvalidArgument)
	_, err = nb.Find("t1").Field(models.FieldOutput)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
