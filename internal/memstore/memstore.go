// Package memstore is an in-process authoritative notebook store. It backs
// the server when NOTEBOOK_STORE=memory and the end-to-end tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dovakin0007.com/notebook-grpc/internal/access"
	"dovakin0007.com/notebook-grpc/internal/kernel"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/tags"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

type Store struct {
	mu        sync.RWMutex
	users     map[string]*models.User
	notebooks map[string]*models.Notebook
	nodes     map[string]string // node id -> notebook id

	exec   kernel.Executor
	logger hclog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Store)

func WithExecutor(e kernel.Executor) Option { return func(s *Store) { s.exec = e } }

func WithLogger(l hclog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithIDs(newID func() string) Option { return func(s *Store) { s.newID = newID } }

func New(opts ...Option) *Store {
	s := &Store{
		users:     make(map[string]*models.User),
		notebooks: make(map[string]*models.Notebook),
		nodes:     make(map[string]string),
		logger:    hclog.NewNullLogger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) ConnectUser(_ context.Context, username, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is empty", models.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username != username {
			continue
		}
		if email != "" && u.Email != email {
			return nil, fmt.Errorf("%w: email does not match user %s", models.ErrPermissionDenied, username)
		}
		c := *u
		return &c, nil
	}
	if email == "" {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, username)
	}
	u := &models.User{ID: s.newID(), Username: username, Email: email, DateCreated: s.now()}
	s.users[u.ID] = u
	s.logger.Info("created user", "user", u.ID, "username", username)
	c := *u
	return &c, nil
}

func (s *Store) GetUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) GetNotebooks(_ context.Context, userID, notebookID string) ([]models.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.knownUser(userID); err != nil {
		return nil, err
	}

	if notebookID != "" {
		nb, err := s.notebook(userID, notebookID, access.Read)
		if err != nil {
			return nil, err
		}
		return []models.Notebook{*nb.Clone()}, nil
	}

	var out []models.Notebook
	for _, nb := range s.notebooks {
		if access.Resolve(userID, nb) != access.None {
			out = append(out, *nb.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].ID < out[j].ID
		}
		return out[i].DateCreated.Before(out[j].DateCreated)
	})
	return out, nil
}

func (s *Store) AddNotebook(_ context.Context, userID, title string) (*models.Notebook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: notebook title is empty", models.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.knownUser(userID); err != nil {
		return nil, err
	}

	now := s.now()
	root := models.NewSection(title)
	root.ID = s.newID()
	root.DateCreated, root.DateModified = now, now
	nb := &models.Notebook{
		ID:           s.newID(),
		Title:        title,
		OwnerID:      userID,
		RootID:       root.ID,
		DateCreated:  now,
		DateModified: now,
		Root:         root,
	}
	s.notebooks[nb.ID] = nb
	s.nodes[root.ID] = nb.ID
	s.logger.Info("created notebook", "notebook", nb.ID, "owner", userID)
	return nb.Summary(), nil
}

func (s *Store) DropNotebook(_ context.Context, userID, notebookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, err := s.notebook(userID, notebookID, access.Owner)
	if err != nil {
		return err
	}
	nb.Root.Walk(func(n *models.Node) bool {
		delete(s.nodes, n.ID)
		return true
	})
	delete(s.notebooks, notebookID)
	return nil
}

func (s *Store) AddNode(_ context.Context, in models.AddNodeInput) (*models.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, err := s.notebookOfNode(in.UserID, in.ParentID, access.Write)
	if err != nil {
		return nil, err
	}
	n, err := models.NewNode(in.Type, in.Title)
	if err != nil {
		return nil, err
	}
	if _, err := nb.CheckInsert(in.ParentID, in.Index); err != nil {
		return nil, err
	}
	now := s.now()
	n.ID = s.newID()
	n.DateCreated, n.DateModified = now, now
	if err := nb.Insert(in.ParentID, in.Index, n); err != nil {
		return nil, err
	}
	s.nodes[n.ID] = nb.ID
	nb.DateModified = now
	return nb.Clone(), nil
}

func (s *Store) DropNode(_ context.Context, userID, nodeID string) (*models.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, err := s.notebookOfNode(userID, nodeID, access.Write)
	if err != nil {
		return nil, err
	}
	removed, err := nb.Remove(nodeID)
	if err != nil {
		return nil, err
	}
	removed.Walk(func(n *models.Node) bool {
		delete(s.nodes, n.ID)
		return true
	})
	nb.DateModified = s.now()
	return nb.Clone(), nil
}

func (s *Store) MoveNode(_ context.Context, in models.MoveNodeInput) (*models.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, err := s.notebookOfNode(in.UserID, in.NodeID, access.Write)
	if err != nil {
		return nil, err
	}
	if s.nodes[in.ParentID] != nb.ID {
		return nil, fmt.Errorf("%w: section %s", models.ErrNotFound, in.ParentID)
	}
	if err := nb.Move(in.NodeID, in.ParentID, in.Index); err != nil {
		return nil, err
	}
	nb.DateModified = s.now()
	return nb.Clone(), nil
}

func (s *Store) EditNode(_ context.Context, in models.EditNodeInput) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateNode(in.UserID, in.NodeID, func(n *models.Node) error {
		return n.SetField(in.Field, in.Value)
	})
}

func (s *Store) AddTags(_ context.Context, userID, nodeID string, add []string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateNode(userID, nodeID, func(n *models.Node) error {
		n.Tags, _ = tags.Add(n.Tags, strings.Join(add, ","))
		return nil
	})
}

func (s *Store) DropTag(_ context.Context, userID, nodeID, tag string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateNode(userID, nodeID, func(n *models.Node) error {
		n.Tags, _ = tags.Remove(n.Tags, tag)
		return nil
	})
}

// Execute runs the kernel without holding the store lock; the output is
// written back only if the cell still exists.
func (s *Store) Execute(ctx context.Context, userID, nodeID string) (*models.Node, error) {
	s.mu.RLock()
	nb, err := s.notebookOfNode(userID, nodeID, access.Write)
	var input string
	if err == nil {
		n := nb.Find(nodeID)
		if n.Type != models.TypeInputCell {
			err = fmt.Errorf("%w: node %s is a %s, only input cells execute", models.ErrInvalidArgument, nodeID, n.Type)
		} else {
			input = n.InputCell.Input
		}
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if s.exec == nil {
		return nil, fmt.Errorf("%w: no kernel configured", models.ErrInvalidArgument)
	}

	output, err := s.exec.Run(ctx, input)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateNode(userID, nodeID, func(n *models.Node) error {
		return n.SetField(models.FieldOutput, output)
	})
}

func (s *Store) AddMember(_ context.Context, in models.MemberInput) (*models.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembers(in, func(nb *models.Notebook) error {
		return nb.AddMember(in.TargetID, in.Role)
	})
}

func (s *Store) DropMember(_ context.Context, in models.MemberInput) (*models.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembers(in, func(nb *models.Notebook) error {
		return nb.RemoveMember(in.TargetID, in.Role)
	})
}

func (s *Store) updateMembers(in models.MemberInput, fn func(*models.Notebook) error) (*models.Notebook, error) {
	nb, err := s.notebook(in.UserID, in.NotebookID, access.Owner)
	if err != nil {
		return nil, err
	}
	if _, ok := s.users[in.TargetID]; !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownUser, in.TargetID)
	}
	if err := fn(nb); err != nil {
		return nil, err
	}
	nb.DateModified = s.now()
	return nb.Clone(), nil
}

// updateNode applies fn to a copy of the node and stores the copy only when
// fn succeeds, so a rejected change leaves nothing behind.
func (s *Store) updateNode(userID, nodeID string, fn func(*models.Node) error) (*models.Node, error) {
	nb, err := s.notebookOfNode(userID, nodeID, access.Write)
	if err != nil {
		return nil, err
	}
	cur := nb.Find(nodeID)
	next := cur.Clone()
	if cur.IsSection() {
		// children stay shared with the tree
		next.Section.Children = cur.Section.Children
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	now := s.now()
	next.DateModified = now
	if err := nb.Replace(next); err != nil {
		return nil, err
	}
	nb.DateModified = now
	return next.Clone(), nil
}

func (s *Store) NotebookOf(_ context.Context, nodeID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("%w: node %s", models.ErrNotFound, nodeID)
	}
	return id, nil
}

func (s *Store) knownUser(userID string) error {
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	return nil
}

func (s *Store) notebook(userID, notebookID string, min access.Permission) (*models.Notebook, error) {
	nb, ok := s.notebooks[notebookID]
	if !ok {
		return nil, fmt.Errorf("%w: notebook %s", models.ErrNotFound, notebookID)
	}
	if err := access.Require(userID, nb, min); err != nil {
		return nil, err
	}
	return nb, nil
}

func (s *Store) notebookOfNode(userID, nodeID string, min access.Permission) (*models.Notebook, error) {
	notebookID, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", models.ErrNotFound, nodeID)
	}
	return s.notebook(userID, notebookID, min)
}
