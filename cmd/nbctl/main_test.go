package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"dovakin0007.com/notebook-grpc/internal/memstore"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/session"
	"github.com/docopt/docopt-go"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportThenImport(t *testing.T) {
	ctx := context.Background()
	sess, err := session.New(memstore.New())
	require.NoError(t, err)
	_, err = sess.Connect(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	nb, err := sess.CreateNotebook(ctx, "Lab")
	require.NoError(t, err)
	nb, err = sess.Open(ctx, nb.ID)
	require.NoError(t, err)
	nb, err = sess.AddNode(ctx, nb.RootID, 0, models.TypeInputCell, "")
	require.NoError(t, err)
	_, err = sess.EditField(ctx, nb.Root.Children()[0].ID, models.FieldInput, "2 + 2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lab.xml")
	var out bytes.Buffer
	c := &cli{
		opts:   docopt.Opts{"<notebook>": nb.ID, "--out": path},
		out:    &out,
		logger: hclog.NewNullLogger(),
		sess:   sess,
	}
	require.NoError(t, c.export(ctx))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "<input>2 + 2</input>")
	assert.Empty(t, out.String())

	c.opts = docopt.Opts{"<file>": path}
	require.NoError(t, c.importXML(ctx))
	assert.Contains(t, out.String(), "Lab")

	nbs, err := sess.Notebooks(ctx)
	require.NoError(t, err)
	assert.Len(t, nbs, 2)
	imported := sess.Notebook()
	require.NotEqual(t, nb.ID, imported.ID)
	require.Len(t, imported.Root.Children(), 1)
	assert.Equal(t, "2 + 2", imported.Root.Children()[0].InputCell.Input)
}

func TestExportToMissingDirectoryFails(t *testing.T) {
	ctx := context.Background()
	sess, err := session.New(memstore.New())
	require.NoError(t, err)
	_, err = sess.Connect(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	nb, err := sess.CreateNotebook(ctx, "Lab")
	require.NoError(t, err)

	c := &cli{
		opts: docopt.Opts{"<notebook>": nb.ID, "--out": filepath.Join(t.TempDir(), "no", "lab.xml")},
		out:  &bytes.Buffer{},
		sess: sess,
	}
	assert.Error(t, c.export(ctx))
}
