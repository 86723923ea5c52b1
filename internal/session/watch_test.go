package session_test

import (
	"context"
	"net"
	"testing"
	"time"

	"dovakin0007.com/notebook-grpc/internal/client"
	"dovakin0007.com/notebook-grpc/internal/events"
	"dovakin0007.com/notebook-grpc/internal/memstore"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/server"
	"dovakin0007.com/notebook-grpc/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// remote starts a server on a bufconn listener and returns a client for it.
func remote(t *testing.T) *client.Client {
	t.Helper()
	bus := events.NewLocalBus()
	t.Cleanup(func() { bus.Close() })
	g := server.NewGrpcServer("bufnet", "notebook", memstore.New(), bus, nil)

	l := bufconn.Listen(1024 * 1024)
	go g.Serve(l)
	t.Cleanup(g.End)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return l.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return client.New(conn, nil)
}

func TestWatchReloadsOnForeignChange(t *testing.T) {
	c := remote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, _ := connect(t, c, "alice")
	bob, _ := connect(t, c, "bob")
	nb := openNotebook(t, alice)
	cell := addChild(t, alice, nb.RootID, models.TypeTextCell)
	_, err := alice.AddCollaborator(ctx, nb.ID, "bob", models.RoleWriter)
	require.NoError(t, err)

	changes := make(chan models.ChangeEvent, 4)
	require.NoError(t, alice.Watch(ctx, func(ev models.ChangeEvent) { changes <- ev }))

	_, err = bob.Open(ctx, nb.ID)
	require.NoError(t, err)
	_, err = bob.EditField(ctx, cell.ID, models.FieldTextData, "from bob")
	require.NoError(t, err)

	select {
	case ev := <-changes:
		assert.Equal(t, cell.ID, ev.NodeID)
		assert.Equal(t, bob.User().ID, ev.UserID)
	case <-ctx.Done():
		t.Fatal("no change seen")
	}
	assert.Equal(t, "from bob", alice.Notebook().Find(cell.ID).TextCell.TextData)
}

func TestWatchNeedsReadAccess(t *testing.T) {
	c := remote(t)
	alice, _ := connect(t, c, "alice")
	nb := openNotebook(t, alice)

	s, err := session.New(c)
	require.NoError(t, err)
	_, err = s.Connect(context.Background(), "mallory", "m@example.com")
	require.NoError(t, err)
	_, err = s.Open(context.Background(), nb.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.ErrorIs(t, s.Watch(context.Background(), nil), models.ErrNotFound)
}
