package session

import (
	"context"
	"fmt"
	"slices"

	"dovakin0007.com/notebook-grpc/internal/access"
	"dovakin0007.com/notebook-grpc/internal/models"
)

// owned returns the notebook the collaborator change applies to, from the
// open tree when it is the active notebook and from the store otherwise.
func (s *Session) owned(ctx context.Context, notebookID string) (string, *models.Notebook, error) {
	s.mu.RLock()
	var (
		uid string
		nb  *models.Notebook
	)
	if s.user != nil {
		uid = s.user.ID
		if s.active != nil && s.active.ID == notebookID {
			nb = s.active.Clone()
		}
	}
	s.mu.RUnlock()
	if uid == "" {
		return "", nil, errNotConnected
	}
	if nb == nil {
		var err error
		if nb, err = s.fetch(ctx, uid, notebookID); err != nil {
			return "", nil, err
		}
	}
	if err := access.Require(uid, nb, access.Owner); err != nil {
		return "", nil, err
	}
	return uid, nb, nil
}

func members(nb *models.Notebook, role models.Role) []string {
	if role == models.RoleWriter {
		return nb.WriterIDs
	}
	return nb.ReaderIDs
}

// AddCollaborator gives username the role on notebookID. A reader made a
// writer, or the reverse, changes role.
func (s *Session) AddCollaborator(ctx context.Context, notebookID, username string, role models.Role) (*models.Notebook, error) {
	return s.collaborator(ctx, notebookID, username, role, true)
}

func (s *Session) DropCollaborator(ctx context.Context, notebookID, username string, role models.Role) (*models.Notebook, error) {
	return s.collaborator(ctx, notebookID, username, role, false)
}

func (s *Session) collaborator(ctx context.Context, notebookID, username string, role models.Role, add bool) (*models.Notebook, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrInvalidArgument, role)
	}
	uid, nb, err := s.owned(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	target, err := s.lookupUser(ctx, username)
	if err != nil {
		return nil, err
	}
	held := slices.Contains(members(nb, role), target.ID)
	switch {
	case add && (held || target.ID == nb.OwnerID):
		return nil, fmt.Errorf("%w: %s is already %s of %s", models.ErrAlreadyMember, username, role, notebookID)
	case !add && !held:
		return nil, fmt.Errorf("%w: %s is not %s of %s", models.ErrNotFound, username, role, notebookID)
	}

	in := models.MemberInput{UserID: uid, NotebookID: notebookID, TargetID: target.ID, Role: role}
	op, call := "addMember", s.store.AddMember
	if !add {
		op, call = "dropMember", s.store.DropMember
	}

	s.mu.RLock()
	open := s.active != nil && s.active.ID == notebookID
	s.mu.RUnlock()
	if open {
		return s.restructure(ctx, uid, notebookID, op, func(ctx context.Context) (*models.Notebook, error) {
			return call(ctx, in)
		})
	}
	var out *models.Notebook
	s.queue.do(notebookID, func() {
		out, err = roundTrip(ctx, s.timeout, op, func(ctx context.Context) (*models.Notebook, error) {
			return call(ctx, in)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
