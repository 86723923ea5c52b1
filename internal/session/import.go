package session

import (
	"context"
	"fmt"
	"strings"

	"dovakin0007.com/notebook-grpc/internal/models"
)

// Import rebuilds src as a new notebook owned by the connected user and
// opens it. Node ids, dates and collaborators of src are not carried over.
func (s *Session) Import(ctx context.Context, src *models.Notebook) (*models.Notebook, error) {
	if src == nil || src.Root == nil {
		return nil, fmt.Errorf("%w: nothing to import", models.ErrInvalidArgument)
	}
	nb, err := s.CreateNotebook(ctx, src.Title)
	if err != nil {
		return nil, err
	}
	if nb, err = s.Open(ctx, nb.ID); err != nil {
		return nil, err
	}
	if err := s.copyNode(ctx, src.Root, nb.RootID); err != nil {
		return nil, fmt.Errorf("import into %s: %w", nb.ID, err)
	}
	s.logger.Info("imported notebook", "notebook", nb.ID, "title", src.Title)
	return s.Refresh(ctx)
}

// copyNode writes the fields and tags of from onto node id, then adds its
// children in order.
func (s *Session) copyNode(ctx context.Context, from *models.Node, id string) error {
	for _, f := range models.Fields(from.Type) {
		v, err := from.Field(f)
		if err != nil {
			return err
		}
		if _, err := s.EditField(ctx, id, f, v); err != nil {
			return err
		}
	}
	if len(from.Tags) > 0 {
		if _, err := s.AddTags(ctx, id, strings.Join(from.Tags, ",")); err != nil {
			return err
		}
	}
	for i, c := range from.Children() {
		var title string
		if c.IsSection() {
			title = c.Section.Title
		}
		nb, err := s.AddNode(ctx, id, i, c.Type, title)
		if err != nil {
			return err
		}
		parent := nb.Find(id)
		if parent == nil || len(parent.Children()) <= i {
			return fmt.Errorf("%w: node %s lost while importing", models.ErrNotFound, id)
		}
		if err := s.copyNode(ctx, c, parent.Children()[i].ID); err != nil {
			return err
		}
	}
	return nil
}
