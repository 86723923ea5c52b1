package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dovakin0007.com/notebook-grpc/internal/access"
	"dovakin0007.com/notebook-grpc/internal/kernel"
	"dovakin0007.com/notebook-grpc/internal/memstore"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/session"
	"dovakin0007.com/notebook-grpc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyStore counts the requests that reach the store.
type spyStore struct {
	*memstore.Store

	mu       sync.Mutex
	calls    map[string]int
	failEdit error
}

func newSpyStore() *spyStore {
	upper := kernel.ExecutorFunc(func(_ context.Context, input string) (string, error) {
		return strings.ToUpper(input), nil
	})
	return &spyStore{Store: memstore.New(memstore.WithExecutor(upper)), calls: make(map[string]int)}
}

func (s *spyStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *spyStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *spyStore) AddNode(ctx context.Context, in models.AddNodeInput) (*models.Notebook, error) {
	s.record("AddNode")
	return s.Store.AddNode(ctx, in)
}

func (s *spyStore) DropNode(ctx context.Context, userID, nodeID string) (*models.Notebook, error) {
	s.record("DropNode")
	return s.Store.DropNode(ctx, userID, nodeID)
}

func (s *spyStore) MoveNode(ctx context.Context, in models.MoveNodeInput) (*models.Notebook, error) {
	s.record("MoveNode")
	return s.Store.MoveNode(ctx, in)
}

func (s *spyStore) EditNode(ctx context.Context, in models.EditNodeInput) (*models.Node, error) {
	s.record("EditNode")
	if s.failEdit != nil {
		return nil, s.failEdit
	}
	return s.Store.EditNode(ctx, in)
}

func (s *spyStore) AddTags(ctx context.Context, userID, nodeID string, tags []string) (*models.Node, error) {
	s.record("AddTags")
	return s.Store.AddTags(ctx, userID, nodeID, tags)
}

func (s *spyStore) DropTag(ctx context.Context, userID, nodeID, tag string) (*models.Node, error) {
	s.record("DropTag")
	return s.Store.DropTag(ctx, userID, nodeID, tag)
}

func (s *spyStore) AddMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error) {
	s.record("AddMember")
	return s.Store.AddMember(ctx, in)
}

func connect(t *testing.T, st store.Store, name string, opts ...session.Option) (*session.Session, *models.User) {
	t.Helper()
	s, err := session.New(st, opts...)
	require.NoError(t, err)
	u, err := s.Connect(context.Background(), name, name+"@example.com")
	require.NoError(t, err)
	return s, u
}

// openNotebook creates a notebook for s and opens it.
func openNotebook(t *testing.T, s *session.Session) *models.Notebook {
	t.Helper()
	ctx := context.Background()
	nb, err := s.CreateNotebook(ctx, "Lab")
	require.NoError(t, err)
	nb, err = s.Open(ctx, nb.ID)
	require.NoError(t, err)
	return nb
}

func addChild(t *testing.T, s *session.Session, parentID string, nt models.NodeType) *models.Node {
	t.Helper()
	nb, err := s.AddNode(context.Background(), parentID, 0, nt, "title")
	require.NoError(t, err)
	return nb.Find(parentID).Children()[0]
}

func TestAddNodeOnEmptyRoot(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	require.Empty(t, nb.Root.Children())

	_, err := s.AddNode(context.Background(), nb.RootID, 0, models.TypeInputCell, "")
	require.NoError(t, err)

	got, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Root.Children(), 1)
	assert.Equal(t, models.TypeInputCell, got.Root.Children()[0].Type)
	assert.Equal(t, got.Root, s.Notebook().Root)
}

func TestAddNodeBadGapIsNotSent(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)

	_, err := s.AddNode(context.Background(), nb.RootID, 1, models.TypeTextCell, "")
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
	_, err = s.AddNode(context.Background(), nb.RootID, -1, models.TypeTextCell, "")
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
	assert.Zero(t, st.count("AddNode"))
}

func TestMoveIntoOwnSubtree(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	outer := addChild(t, s, nb.RootID, models.TypeSection)
	inner := addChild(t, s, outer.ID, models.TypeSection)
	before := s.Notebook()

	_, err := s.MoveNode(context.Background(), outer.ID, inner.ID, 0)
	assert.ErrorIs(t, err, models.ErrCycleDetected)
	_, err = s.MoveNode(context.Background(), outer.ID, outer.ID, 0)
	assert.ErrorIs(t, err, models.ErrCycleDetected)

	assert.Zero(t, st.count("MoveNode"))
	assert.Equal(t, before, s.Notebook())
	stored, err := st.GetNotebooks(context.Background(), before.OwnerID, before.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Root, stored[0].Root)
}

func TestMoveWithinSection(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	c := addChild(t, s, nb.RootID, models.TypeTextCell)
	b := addChild(t, s, nb.RootID, models.TypeTextCell)
	a := addChild(t, s, nb.RootID, models.TypeTextCell)

	got, err := s.MoveNode(context.Background(), a.ID, nb.RootID, 3)
	require.NoError(t, err)
	var order []string
	for _, n := range got.Root.Children() {
		order = append(order, n.ID)
	}
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, order)
}

func TestDropRootIsRefused(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)

	_, err := s.DropNode(context.Background(), nb.RootID)
	assert.ErrorIs(t, err, models.ErrCannotDropRoot)
	assert.Zero(t, st.count("DropNode"))
}

func TestDropNodeRemovesSubtree(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	section := addChild(t, s, nb.RootID, models.TypeSection)
	cell := addChild(t, s, section.ID, models.TypeInputCell)

	got, err := s.DropNode(context.Background(), section.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Root.Children())
	assert.Nil(t, s.Notebook().Find(cell.ID))
}

func TestReaderCannotEdit(t *testing.T) {
	st := newSpyStore()
	alice, _ := connect(t, st, "alice")
	bob, _ := connect(t, st, "bob")
	nb := openNotebook(t, alice)
	cell := addChild(t, alice, nb.RootID, models.TypeInputCell)

	_, err := alice.AddCollaborator(context.Background(), nb.ID, "bob", models.RoleReader)
	require.NoError(t, err)

	_, err = bob.Open(context.Background(), nb.ID)
	require.NoError(t, err)
	assert.Equal(t, access.Read, bob.Permission())
	before := bob.Notebook()

	_, err = bob.EditField(context.Background(), cell.ID, models.FieldComment, "x")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.Zero(t, st.count("EditNode"))
	assert.Equal(t, before, bob.Notebook())
	assert.False(t, bob.CanEdit(cell.ID))
}

func TestEditFieldReplacesNode(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	cell := addChild(t, s, nb.RootID, models.TypeInputCell)
	_, err := s.AddTags(context.Background(), cell.ID, "x")
	require.NoError(t, err)

	require.NoError(t, s.BeginEdit(cell.ID, models.FieldInput))
	assert.Equal(t, session.Editing, s.EditState(cell.ID, models.FieldInput))

	n, err := s.EditField(context.Background(), cell.ID, models.FieldInput, "1+1")
	require.NoError(t, err)
	assert.Equal(t, "1+1", n.InputCell.Input)
	assert.Equal(t, []string{"x"}, n.Tags)
	assert.Equal(t, session.Clean, s.EditState(cell.ID, models.FieldInput))
	assert.Equal(t, "1+1", s.Notebook().Find(cell.ID).InputCell.Input)

	_, err = s.EditField(context.Background(), cell.ID, models.FieldInput, "1+1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.count("EditNode"))

	_, err = s.EditField(context.Background(), cell.ID, "title", "nope")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRejectedEditFailsUntilRefresh(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	cell := addChild(t, s, nb.RootID, models.TypeTextCell)

	st.failEdit = errors.New("boom")
	_, err := s.EditField(context.Background(), cell.ID, models.FieldTextData, "hello")
	require.Error(t, err)
	assert.Equal(t, session.Failed, s.EditState(cell.ID, models.FieldTextData))
	assert.Empty(t, s.Notebook().Find(cell.ID).TextCell.TextData)

	_, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Clean, s.EditState(cell.ID, models.FieldTextData))
}

func TestTagsRoundTrip(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	cell := addChild(t, s, nb.RootID, models.TypeTextCell)
	ctx := context.Background()

	n, err := s.AddTags(ctx, cell.ID, "a, b ,b,  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, n.Tags)

	_, err = s.AddTags(ctx, cell.ID, "b, a")
	require.NoError(t, err)
	assert.Equal(t, 1, st.count("AddTags"))

	n, err = s.DropTag(ctx, cell.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, n.Tags)
	assert.Zero(t, st.count("DropTag"))

	_, err = s.AddTags(ctx, cell.ID, "c")
	require.NoError(t, err)
	n, err = s.DropTag(ctx, cell.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, n.Tags)
	assert.Equal(t, []string{"a", "b"}, s.Notebook().Find(cell.ID).Tags)
}

func TestCollaborators(t *testing.T) {
	st := newSpyStore()
	alice, _ := connect(t, st, "alice")
	bob, _ := connect(t, st, "bob")
	nb := openNotebook(t, alice)
	ctx := context.Background()

	_, err := alice.AddCollaborator(ctx, nb.ID, "carol", models.RoleWriter)
	assert.ErrorIs(t, err, models.ErrUnknownUser)
	_, err = alice.AddCollaborator(ctx, nb.ID, "alice", models.RoleWriter)
	assert.ErrorIs(t, err, models.ErrAlreadyMember)
	_, err = alice.DropCollaborator(ctx, nb.ID, "bob", models.RoleWriter)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := alice.AddCollaborator(ctx, nb.ID, "bob", models.RoleWriter)
	require.NoError(t, err)
	assert.Len(t, got.WriterIDs, 1)
	assert.Equal(t, got.WriterIDs, alice.Notebook().WriterIDs)

	_, err = alice.AddCollaborator(ctx, nb.ID, "bob", models.RoleWriter)
	assert.ErrorIs(t, err, models.ErrAlreadyMember)
	assert.Equal(t, 1, st.count("AddMember"))

	_, err = bob.Open(ctx, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, access.Write, bob.Permission())
	_, err = bob.AddCollaborator(ctx, nb.ID, "alice", models.RoleReader)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
}

func TestCollaboratorsBeyondUserCache(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	for _, name := range []string{"aaron", "bob"} {
		_, err := st.ConnectUser(ctx, name, name+"@example.com")
		require.NoError(t, err)
	}
	zed, _ := connect(t, st, "zed", session.WithUserCacheSize(2))
	nb := openNotebook(t, zed)

	users, err := zed.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)

	got, err := zed.AddCollaborator(ctx, nb.ID, "aaron", models.RoleWriter)
	require.NoError(t, err)
	require.Len(t, got.WriterIDs, 1)

	got, err = zed.DropCollaborator(ctx, nb.ID, "aaron", models.RoleWriter)
	require.NoError(t, err)
	assert.Empty(t, got.WriterIDs)

	_, err = zed.AddCollaborator(ctx, nb.ID, "nobody", models.RoleReader)
	assert.ErrorIs(t, err, models.ErrUnknownUser)
}

func TestCollaboratorChangesRole(t *testing.T) {
	st := newSpyStore()
	alice, _ := connect(t, st, "alice")
	_, bob := connect(t, st, "bob")
	nb := openNotebook(t, alice)
	ctx := context.Background()

	_, err := alice.DropCollaborator(ctx, nb.ID, "bob", models.RoleReader)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := alice.AddCollaborator(ctx, nb.ID, "bob", models.RoleReader)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, got.ReaderIDs)

	got, err = alice.AddCollaborator(ctx, nb.ID, "bob", models.RoleWriter)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, got.WriterIDs)
	assert.Empty(t, got.ReaderIDs)

	_, err = alice.DropCollaborator(ctx, nb.ID, "bob", models.RoleReader)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 2, st.count("AddMember"))

	_, err = alice.AddCollaborator(ctx, nb.ID, "bob", models.Role("admin"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestConnectResetsState(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	openNotebook(t, s)

	_, err := s.Connect(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Nil(t, s.Notebook())
	assert.Equal(t, access.None, s.Permission())

	_, err = s.Connect(context.Background(), "nobody", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	s.Disconnect()
	assert.Nil(t, s.User())
	_, err = s.Notebooks(context.Background())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
}

// gatedStore holds every Execute until release is closed.
type gatedStore struct {
	*memstore.Store
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(t *testing.T) *gatedStore {
	g := &gatedStore{
		Store: memstore.New(memstore.WithExecutor(kernel.ExecutorFunc(func(_ context.Context, input string) (string, error) {
			return "out:" + input, nil
		}))),
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	t.Cleanup(func() {
		select {
		case <-g.release:
		default:
			close(g.release)
		}
	})
	return g
}

func (g *gatedStore) Execute(ctx context.Context, userID, nodeID string) (*models.Node, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Execute(ctx, userID, nodeID)
}

func TestExecuteTwiceSendsOnce(t *testing.T) {
	st := newGatedStore(t)
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	cell := addChild(t, s, nb.RootID, models.TypeInputCell)

	type reply struct {
		n   *models.Node
		err error
	}
	first := make(chan reply, 1)
	go func() {
		n, err := s.Execute(context.Background(), cell.ID)
		first <- reply{n, err}
	}()
	<-st.entered
	assert.True(t, s.IsPending(cell.ID))
	assert.False(t, s.CanEdit(cell.ID))

	_, err := s.Execute(context.Background(), cell.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyPending)
	_, err = s.EditField(context.Background(), cell.ID, models.FieldInput, "x")
	assert.ErrorIs(t, err, models.ErrAlreadyPending)

	close(st.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, "out:", r.n.InputCell.Output)
	assert.Equal(t, int32(1), st.calls.Load())
	assert.False(t, s.IsPending(cell.ID))
}

func TestExecuteTimeoutClearsPending(t *testing.T) {
	st := newGatedStore(t)
	s, _ := connect(t, st, "alice", session.WithRequestTimeout(50*time.Millisecond))
	nb := openNotebook(t, s)
	cell := addChild(t, s, nb.RootID, models.TypeInputCell)

	_, err := s.Execute(context.Background(), cell.ID)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.False(t, s.IsPending(cell.ID))
	assert.True(t, s.CanEdit(cell.ID))
}

func TestExecuteOnlyInputCells(t *testing.T) {
	st := newSpyStore()
	s, _ := connect(t, st, "alice")
	nb := openNotebook(t, s)
	text := addChild(t, s, nb.RootID, models.TypeTextCell)

	_, err := s.Execute(context.Background(), text.ID)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.False(t, s.IsPending(text.ID))
}

// hookStore runs onEdit before each EditNode reaches the store.
type hookStore struct {
	*memstore.Store
	onEdit func(models.EditNodeInput)
}

func (h *hookStore) EditNode(ctx context.Context, in models.EditNodeInput) (*models.Node, error) {
	h.onEdit(in)
	return h.Store.EditNode(ctx, in)
}

func TestEditsOnOneNodeApplyInOrder(t *testing.T) {
	st := &hookStore{Store: memstore.New(), onEdit: func(models.EditNodeInput) {}}
	s, u := connect(t, st, "alice")
	nb := openNotebook(t, s)
	cell := addChild(t, s, nb.RootID, models.TypeInputCell)

	entered := make(chan struct{})
	gate := make(chan struct{})
	var seen string
	st.onEdit = func(in models.EditNodeInput) {
		if in.Value == "first" {
			close(entered)
			<-gate
			return
		}
		seen = s.Notebook().Find(cell.ID).InputCell.Input
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.EditField(context.Background(), cell.ID, models.FieldInput, "first")
		assert.NoError(t, err)
	}()
	<-entered
	go func() {
		defer wg.Done()
		_, err := s.EditField(context.Background(), cell.ID, models.FieldInput, "second")
		assert.NoError(t, err)
	}()
	close(gate)
	wg.Wait()

	assert.Equal(t, "first", seen)
	assert.Equal(t, "second", s.Notebook().Find(cell.ID).InputCell.Input)
	stored, err := st.GetNotebooks(context.Background(), u.ID, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", stored[0].Find(cell.ID).InputCell.Input)
}
