package session_test

import (
	"bytes"
	"context"
	"testing"

	"dovakin0007.com/notebook-grpc/internal/export"
	"dovakin0007.com/notebook-grpc/internal/memstore"
	"dovakin0007.com/notebook-grpc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRebuildsExport(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	s, u := connect(t, st, "alice")
	nb := openNotebook(t, s)

	sec := addChild(t, s, nb.RootID, models.TypeSection)
	_, err := s.EditField(ctx, sec.ID, models.FieldTitle, "Part 1")
	require.NoError(t, err)
	cell := addChild(t, s, sec.ID, models.TypeInputCell)
	_, err = s.EditField(ctx, cell.ID, models.FieldInput, "1 < 2")
	require.NoError(t, err)
	_, err = s.EditField(ctx, cell.ID, models.FieldOutput, "True")
	require.NoError(t, err)
	_, err = s.AddTags(ctx, cell.ID, "math, demo")
	require.NoError(t, err)
	text, err := s.AddNode(ctx, nb.RootID, 1, models.TypeTextCell, "")
	require.NoError(t, err)
	_, err = s.EditField(ctx, text.Root.Children()[1].ID, models.FieldTextData, "# Notes")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteXML(&buf, s.Notebook()))
	src, err := export.ReadXML(&buf)
	require.NoError(t, err)

	got, err := s.Import(ctx, src)
	require.NoError(t, err)
	assert.NotEqual(t, nb.ID, got.ID)
	assert.Equal(t, u.ID, got.OwnerID)
	assert.Equal(t, got.ID, s.Notebook().ID)

	kids := got.Root.Children()
	require.Len(t, kids, 2)
	assert.Equal(t, "Part 1", kids[0].Section.Title)
	assert.Equal(t, "# Notes", kids[1].TextCell.TextData)
	require.Len(t, kids[0].Children(), 1)
	imported := kids[0].Children()[0]
	assert.NotEqual(t, cell.ID, imported.ID)
	assert.Equal(t, "1 < 2", imported.InputCell.Input)
	assert.Equal(t, "True", imported.InputCell.Output)
	assert.Equal(t, []string{"math", "demo"}, imported.Tags)
}

func TestImportNeedsTree(t *testing.T) {
	s, _ := connect(t, memstore.New(), "alice")
	_, err := s.Import(context.Background(), &models.Notebook{Title: "empty"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
