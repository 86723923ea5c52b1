// Package session is the client side of the notebook protocol. A Session
// holds the connected user, the open notebook and the pending executions,
// checks permissions, positions and cycles before anything is sent, and only
// trusts the store's replies: nodes are replaced whole and structural changes
// reload the tree.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dovakin0007.com/notebook-grpc/internal/access"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/pending"
	"dovakin0007.com/notebook-grpc/internal/store"
	"dovakin0007.com/notebook-grpc/internal/tags"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserCacheSize  = 256
)

var errNotConnected = fmt.Errorf("%w: no user connected", models.ErrPermissionDenied)

type Session struct {
	store   store.Store
	logger  hclog.Logger
	timeout time.Duration

	pending *pending.Tracker
	queue   *queue
	users   *lru.Cache

	mu     sync.RWMutex
	user   *models.User
	active *models.Notebook
	perm   access.Permission
	edits  map[fieldKey]EditState
}

type Option func(*Session)

func WithLogger(l hclog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithRequestTimeout bounds every store round trip. Zero keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithUserCacheSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			cache, err := lru.New(n)
			if err == nil {
				s.users = cache
			}
		}
	}
}

func New(st store.Store, opts ...Option) (*Session, error) {
	users, err := lru.New(DefaultUserCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Session{
		store:   st,
		logger:  hclog.NewNullLogger(),
		timeout: DefaultRequestTimeout,
		pending: pending.New(),
		queue:   newQueue(),
		users:   users,
		edits:   make(map[fieldKey]EditState),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type result[T any] struct {
	v   T
	err error
}

// roundTrip runs one store call under the request timeout. A call that
// outlives it is abandoned and reported as models.ErrTimeout.
func roundTrip[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s: %v", models.ErrTimeout, op, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s after %s", models.ErrTimeout, op, timeout)
		}
		return zero, fmt.Errorf("%w: %s: %v", models.ErrTransportFailure, op, ctx.Err())
	}
}

// Connect starts a session for username, creating the user when email is
// given and the name is new. Any earlier session state is dropped.
func (s *Session) Connect(ctx context.Context, username, email string) (*models.User, error) {
	u, err := roundTrip(ctx, s.timeout, "connectUser", func(ctx context.Context) (*models.User, error) {
		return s.store.ConnectUser(ctx, username, email)
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = u
	s.active = nil
	s.perm = access.None
	s.edits = make(map[fieldKey]EditState)
	s.mu.Unlock()
	s.pending.Reset()
	s.users.Purge()
	s.users.Add(u.Username, *u)
	s.logger.Info("connected", "user", u.ID, "username", u.Username)
	c := *u
	return &c, nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	u := s.user
	s.user = nil
	s.active = nil
	s.perm = access.None
	s.edits = make(map[fieldKey]EditState)
	s.mu.Unlock()
	s.pending.Reset()
	s.users.Purge()
	if u != nil {
		s.logger.Info("disconnected", "user", u.ID)
	}
}

// User returns the connected user, nil before Connect.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	c := *s.user
	return &c
}

func (s *Session) userID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", errNotConnected
	}
	return s.user.ID, nil
}

// Users reloads the user directory used to resolve collaborator names.
func (s *Session) Users(ctx context.Context) ([]models.User, error) {
	users, err := roundTrip(ctx, s.timeout, "getUsers", s.store.GetUsers)
	if err != nil {
		return nil, err
	}
	s.users.Purge()
	for _, u := range users {
		s.users.Add(u.Username, u)
	}
	return users, nil
}

// lookupUser resolves a username from the cache, reloading the directory
// once on a miss.
func (s *Session) lookupUser(ctx context.Context, username string) (models.User, error) {
	if v, ok := s.users.Get(username); ok {
		return v.(models.User), nil
	}
	users, err := s.Users(ctx)
	if err != nil {
		return models.User{}, err
	}
	// users can hold more names than the cache keeps.
	for _, u := range users {
		if u.Username == username {
			s.users.Add(u.Username, u)
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("%w: %s", models.ErrUnknownUser, username)
}

// Notebooks lists summaries of every notebook the user can read.
func (s *Session) Notebooks(ctx context.Context) ([]models.Notebook, error) {
	uid, err := s.userID()
	if err != nil {
		return nil, err
	}
	return roundTrip(ctx, s.timeout, "getNotebooks", func(ctx context.Context) ([]models.Notebook, error) {
		return s.store.GetNotebooks(ctx, uid, "")
	})
}

func (s *Session) CreateNotebook(ctx context.Context, title string) (*models.Notebook, error) {
	uid, err := s.userID()
	if err != nil {
		return nil, err
	}
	return roundTrip(ctx, s.timeout, "addNotebook", func(ctx context.Context) (*models.Notebook, error) {
		return s.store.AddNotebook(ctx, uid, title)
	})
}

// DropNotebook removes a notebook the user owns, closing it when it is open.
func (s *Session) DropNotebook(ctx context.Context, notebookID string) error {
	uid, err := s.userID()
	if err != nil {
		return err
	}
	s.mu.RLock()
	open := s.active != nil && s.active.ID == notebookID
	perm := s.perm
	s.mu.RUnlock()
	if open && !perm.AtLeast(access.Owner) {
		return fmt.Errorf("%w: dropping a notebook needs owner, have %s", models.ErrPermissionDenied, perm)
	}

	s.queue.do(notebookID, func() {
		_, err = roundTrip(ctx, s.timeout, "dropNotebook", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.store.DropNotebook(ctx, uid, notebookID)
		})
	})
	if err != nil {
		return err
	}
	s.close(notebookID)
	return nil
}

func (s *Session) close(notebookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.ID == notebookID {
		s.active = nil
		s.perm = access.None
		s.edits = make(map[fieldKey]EditState)
		s.pending.Reset()
	}
}

// Open loads the full tree of notebookID and makes it the active notebook.
func (s *Session) Open(ctx context.Context, notebookID string) (*models.Notebook, error) {
	uid, err := s.userID()
	if err != nil {
		return nil, err
	}
	nb, err := s.fetch(ctx, uid, notebookID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.active == nil || s.active.ID != nb.ID {
		s.edits = make(map[fieldKey]EditState)
		s.pending.Reset()
	}
	s.install(uid, nb)
	s.mu.Unlock()
	return nb.Clone(), nil
}

func (s *Session) fetch(ctx context.Context, uid, notebookID string) (*models.Notebook, error) {
	nbs, err := roundTrip(ctx, s.timeout, "getNotebooks", func(ctx context.Context) ([]models.Notebook, error) {
		return s.store.GetNotebooks(ctx, uid, notebookID)
	})
	if err != nil {
		return nil, err
	}
	if len(nbs) == 0 || nbs[0].Root == nil {
		return nil, fmt.Errorf("%w: notebook %s", models.ErrNotFound, notebookID)
	}
	nb := nbs[0]
	nb.Relink()
	return &nb, nil
}

// install replaces the active notebook. Callers hold s.mu.
func (s *Session) install(uid string, nb *models.Notebook) {
	s.active = nb
	s.perm = access.Resolve(uid, nb)
	for k, st := range s.edits {
		if st == Failed || nb.Find(k.node) == nil {
			delete(s.edits, k)
		}
	}
}

// Refresh reloads the active notebook after every queued structural change
// has been applied.
func (s *Session) Refresh(ctx context.Context) (*models.Notebook, error) {
	uid, nbID, err := s.activeIDs()
	if err != nil {
		return nil, err
	}
	var nb *models.Notebook
	s.queue.do(nbID, func() {
		nb, err = s.reload(ctx, uid, nbID)
	})
	if err != nil {
		return nil, err
	}
	return nb.Clone(), nil
}

// reload fetches the tree and installs it if nbID is still active.
func (s *Session) reload(ctx context.Context, uid, nbID string) (*models.Notebook, error) {
	nb, err := s.fetch(ctx, uid, nbID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrPermissionDenied) {
			s.logger.Info("notebook no longer readable", "notebook", nbID, "error", err)
			s.close(nbID)
		}
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.ID == nbID {
		s.install(uid, nb)
	}
	return nb, nil
}

func (s *Session) activeIDs() (uid, nbID string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", "", errNotConnected
	}
	if s.active == nil {
		return "", "", fmt.Errorf("%w: no notebook open", models.ErrNotFound)
	}
	return s.user.ID, s.active.ID, nil
}

// Notebook returns a copy of the active notebook, nil when none is open.
func (s *Session) Notebook() *models.Notebook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Clone()
}

func (s *Session) Permission() access.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perm
}

func (s *Session) IsPending(nodeID string) bool {
	return s.pending.IsPending(nodeID)
}

// CanEdit reports whether the node may be changed right now: it exists, the
// user may write and no execution of it is outstanding.
func (s *Session) CanEdit(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil && s.perm.AtLeast(access.Write) &&
		s.active.Find(nodeID) != nil && !s.pending.IsPending(nodeID)
}

func (s *Session) EditState(nodeID, field string) EditState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edits[fieldKey{nodeID, field}]
}

// BeginEdit marks a field as being edited locally.
func (s *Session) BeginEdit(nodeID, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.writable(nodeID)
	if err != nil {
		return err
	}
	if _, err := n.Field(field); err != nil {
		return err
	}
	s.edits[fieldKey{nodeID, field}] = Editing
	return nil
}

// writable finds a node the user may change. Callers hold s.mu.
func (s *Session) writable(nodeID string) (*models.Node, error) {
	if s.user == nil {
		return nil, errNotConnected
	}
	if s.active == nil {
		return nil, fmt.Errorf("%w: no notebook open", models.ErrNotFound)
	}
	if err := access.Require(s.user.ID, s.active, access.Write); err != nil {
		return nil, err
	}
	n := s.active.Find(nodeID)
	if n == nil {
		return nil, fmt.Errorf("%w: node %s", models.ErrNotFound, nodeID)
	}
	if s.pending.IsPending(nodeID) {
		return nil, fmt.Errorf("%w: node %s", models.ErrAlreadyPending, nodeID)
	}
	return n, nil
}

// target snapshots what a node operation needs before it is queued.
type target struct {
	uid  string
	nbID string
	node *models.Node
}

func (s *Session) target(nodeID string) (target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.writable(nodeID)
	if err != nil {
		return target{}, err
	}
	return target{uid: s.user.ID, nbID: s.active.ID, node: n.Clone()}, nil
}

// applyNode replaces the node in the active tree with the store's copy.
func (s *Session) applyNode(nbID string, n *models.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != nbID {
		return
	}
	if err := s.active.Replace(n.Clone()); err != nil {
		s.logger.Warn("reply for a node no longer in the tree", "node", n.ID, "error", err)
	}
}

func (s *Session) setEdit(k fieldKey, st EditState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == Clean {
		delete(s.edits, k)
		return
	}
	s.edits[k] = st
}

// EditField submits one field. An unchanged value is not sent. The reply
// replaces the whole node; a rejection leaves the stored value in place and
// the field Failed until the next refresh.
func (s *Session) EditField(ctx context.Context, nodeID, field, value string) (*models.Node, error) {
	t, err := s.target(nodeID)
	if err != nil {
		return nil, err
	}
	cur, err := t.node.Field(field)
	if err != nil {
		return nil, err
	}
	k := fieldKey{nodeID, field}
	if cur == value {
		s.setEdit(k, Clean)
		return t.node, nil
	}

	s.setEdit(k, Submitting)
	var n *models.Node
	s.queue.do(nodeID, func() {
		n, err = roundTrip(ctx, s.timeout, "editNode", func(ctx context.Context) (*models.Node, error) {
			return s.store.EditNode(ctx, models.EditNodeInput{UserID: t.uid, NodeID: nodeID, Field: field, Value: value})
		})
		if err == nil {
			s.applyNode(t.nbID, n)
		}
	})
	if err != nil {
		s.setEdit(k, Failed)
		s.logger.Debug("edit rejected", "node", nodeID, "field", field, "error", err)
		return nil, err
	}
	s.setEdit(k, Clean)
	return n.Clone(), nil
}

// AddTags adds the comma separated tags in raw. Nothing is sent when every
// tag is already present.
func (s *Session) AddTags(ctx context.Context, nodeID, raw string) (*models.Node, error) {
	t, err := s.target(nodeID)
	if err != nil {
		return nil, err
	}
	want, added := tags.Add(t.node.Tags, raw)
	if len(added) == 0 {
		return t.node, nil
	}
	var n *models.Node
	s.queue.do(nodeID, func() {
		n, err = roundTrip(ctx, s.timeout, "addTags", func(ctx context.Context) (*models.Node, error) {
			return s.store.AddTags(ctx, t.uid, nodeID, added)
		})
		if err == nil {
			n.Tags = keepOrder(want, n.Tags)
			s.applyNode(t.nbID, n)
		}
	})
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// DropTag removes tag. Dropping an absent tag sends nothing.
func (s *Session) DropTag(ctx context.Context, nodeID, tag string) (*models.Node, error) {
	t, err := s.target(nodeID)
	if err != nil {
		return nil, err
	}
	want, removed := tags.Remove(t.node.Tags, tag)
	if !removed {
		return t.node, nil
	}
	var n *models.Node
	s.queue.do(nodeID, func() {
		n, err = roundTrip(ctx, s.timeout, "dropTag", func(ctx context.Context) (*models.Node, error) {
			return s.store.DropTag(ctx, t.uid, nodeID, tag)
		})
		if err == nil {
			n.Tags = keepOrder(want, n.Tags)
			s.applyNode(t.nbID, n)
		}
	})
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Execute runs an InputCell. The cell is pending from the moment the call is
// accepted until its reply, or the timeout, arrives; a second Execute in the
// meantime fails with models.ErrAlreadyPending without reaching the store.
func (s *Session) Execute(ctx context.Context, nodeID string) (*models.Node, error) {
	s.mu.RLock()
	n, err := s.writable(nodeID)
	var uid, nbID string
	if err == nil {
		uid, nbID = s.user.ID, s.active.ID
		if n.Type != models.TypeInputCell {
			err = fmt.Errorf("%w: node %s is a %s, only input cells execute", models.ErrInvalidArgument, nodeID, n.Type)
		} else if !s.pending.TryMark(nodeID) {
			err = fmt.Errorf("%w: node %s", models.ErrAlreadyPending, nodeID)
		}
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var out *models.Node
	s.queue.do(nodeID, func() {
		out, err = roundTrip(ctx, s.timeout, "execute", func(ctx context.Context) (*models.Node, error) {
			return s.store.Execute(ctx, uid, nodeID)
		})
		s.pending.Clear(nodeID)
		if err == nil {
			s.applyNode(nbID, out)
		}
	})
	if err != nil {
		s.logger.Warn("execution failed", "node", nodeID, "error", err)
		return nil, err
	}
	return out.Clone(), nil
}

// structural snapshots the active notebook for a tree change. Callers hold
// s.mu.
func (s *Session) structural() (uid string, nb *models.Notebook, err error) {
	if s.user == nil {
		return "", nil, errNotConnected
	}
	if s.active == nil {
		return "", nil, fmt.Errorf("%w: no notebook open", models.ErrNotFound)
	}
	if err := access.Require(s.user.ID, s.active, access.Write); err != nil {
		return "", nil, err
	}
	return s.user.ID, s.active, nil
}

// restructure sends a tree change for the active notebook and reloads the
// tree from the store once it is accepted.
func (s *Session) restructure(ctx context.Context, uid, nbID, op string, fn func(context.Context) (*models.Notebook, error)) (*models.Notebook, error) {
	var (
		nb  *models.Notebook
		err error
	)
	s.queue.do(nbID, func() {
		var resp *models.Notebook
		resp, err = roundTrip(ctx, s.timeout, op, fn)
		if err != nil {
			return
		}
		nb, err = s.reload(ctx, uid, nbID)
		if err != nil && !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrPermissionDenied) {
			s.logger.Warn("reload after change failed, using the change reply", "notebook", nbID, "op", op, "error", err)
			resp.Relink()
			s.mu.Lock()
			if s.active != nil && s.active.ID == nbID && resp.Root != nil {
				s.install(uid, resp)
			}
			s.mu.Unlock()
			nb, err = resp, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return nb.Clone(), nil
}

// AddNode inserts an empty node of type t at gap index of parentID.
func (s *Session) AddNode(ctx context.Context, parentID string, index int, t models.NodeType, title string) (*models.Notebook, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown node type %q", models.ErrInvalidArgument, t)
	}
	s.mu.RLock()
	uid, nb, err := s.structural()
	if err == nil {
		_, err = nb.CheckInsert(parentID, index)
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.restructure(ctx, uid, nb.ID, "addNode", func(ctx context.Context) (*models.Notebook, error) {
		return s.store.AddNode(ctx, models.AddNodeInput{UserID: uid, ParentID: parentID, Index: index, Type: t, Title: title})
	})
}

// DropNode removes nodeID and its subtree.
func (s *Session) DropNode(ctx context.Context, nodeID string) (*models.Notebook, error) {
	s.mu.RLock()
	uid, nb, err := s.structural()
	var removed []string
	if err == nil {
		var n *models.Node
		if n, err = nb.CheckDrop(nodeID); err == nil {
			n.Walk(func(c *models.Node) bool {
				removed = append(removed, c.ID)
				return true
			})
		}
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out, err := s.restructure(ctx, uid, nb.ID, "dropNode", func(ctx context.Context) (*models.Notebook, error) {
		return s.store.DropNode(ctx, uid, nodeID)
	})
	if err != nil {
		return nil, err
	}
	for _, id := range removed {
		s.pending.Clear(id)
	}
	return out, nil
}

// MoveNode moves nodeID to gap index of parentID. The index is measured
// before the node leaves its current section.
func (s *Session) MoveNode(ctx context.Context, nodeID, parentID string, index int) (*models.Notebook, error) {
	s.mu.RLock()
	uid, nb, err := s.structural()
	if err == nil {
		err = nb.CheckMove(nodeID, parentID, index)
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.restructure(ctx, uid, nb.ID, "moveNode", func(ctx context.Context) (*models.Notebook, error) {
		return s.store.MoveNode(ctx, models.MoveNodeInput{UserID: uid, NodeID: nodeID, ParentID: parentID, Index: index})
	})
}
