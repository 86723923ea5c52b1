package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dovakin0007.com/notebook-grpc/internal/access"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/tags"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var nodeColumns = []string{
	"id", "parent_id", "node_type", "comment", "title", "input", "output",
	"format", "text_data", "created_at", "modified_at",
}

var fieldColumns = map[string]string{
	models.FieldComment:  "comment",
	models.FieldTitle:    "title",
	models.FieldInput:    "input",
	models.FieldOutput:   "output",
	models.FieldFormat:   "format",
	models.FieldTextData: "text_data",
}

type nodeRow struct {
	ID         string         `db:"id"`
	ParentID   sql.NullString `db:"parent_id"`
	Type       string         `db:"node_type"`
	Comment    string         `db:"comment"`
	Title      string         `db:"title"`
	Input      string         `db:"input"`
	Output     string         `db:"output"`
	Format     string         `db:"format"`
	TextData   string         `db:"text_data"`
	CreatedAt  time.Time      `db:"created_at"`
	ModifiedAt time.Time      `db:"modified_at"`
}

func (r nodeRow) node() (*models.Node, error) {
	n, err := models.NewNode(models.NodeType(r.Type), r.Title)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", r.ID, err)
	}
	n.ID = r.ID
	n.ParentID = r.ParentID.String
	n.Comment = r.Comment
	n.DateCreated = r.CreatedAt
	n.DateModified = r.ModifiedAt
	switch n.Type {
	case models.TypeInputCell:
		n.InputCell.Input, n.InputCell.Output = r.Input, r.Output
	case models.TypeTextCell:
		n.TextCell.Format, n.TextCell.TextData = r.Format, r.TextData
	}
	return n, nil
}

type memberRow struct {
	NotebookID string `db:"notebook_id"`
	UserID     string `db:"user_id"`
	Role       string `db:"role"`
}

type tagRow struct {
	NodeID string `db:"node_id"`
	Tag    string `db:"tag"`
}

func applyMembers(byID map[string]*models.Notebook, rows []memberRow) {
	for _, m := range rows {
		nb, ok := byID[m.NotebookID]
		if !ok {
			continue
		}
		switch models.Role(m.Role) {
		case models.RoleWriter:
			nb.WriterIDs = append(nb.WriterIDs, m.UserID)
		case models.RoleReader:
			nb.ReaderIDs = append(nb.ReaderIDs, m.UserID)
		}
	}
}

func (d *Database) loadMembers(ctx context.Context, q sqlx.QueryerContext, notebooks ...*models.Notebook) error {
	if len(notebooks) == 0 {
		return nil
	}
	byID := make(map[string]*models.Notebook, len(notebooks))
	ids := make([]string, 0, len(notebooks))
	for _, nb := range notebooks {
		byID[nb.ID] = nb
		ids = append(ids, nb.ID)
	}
	query, args, err := psql.Select("notebook_id", "user_id", "role").
		From("notebook_members").
		Where(sq.Eq{"notebook_id": ids}).
		OrderBy("notebook_id", "user_id").
		ToSql()
	if err != nil {
		return err
	}
	var rows []memberRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	applyMembers(byID, rows)
	return nil
}

// loadNotebook reads one notebook with its members and tree. With lock set,
// q must be a transaction; the notebook row stays locked until it ends.
func (d *Database) loadNotebook(ctx context.Context, q sqlx.QueryerContext, notebookID string, lock bool) (*models.Notebook, error) {
	b := psql.Select("id", "title", "owner_id", "root_id", "created_at", "modified_at").
		From("notebooks").
		Where(sq.Eq{"id": notebookID})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var nb models.Notebook
	if err := sqlx.GetContext(ctx, q, &nb, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: notebook %s", models.ErrNotFound, notebookID)
		}
		return nil, fmt.Errorf("load notebook %s: %w", notebookID, err)
	}
	if err := d.loadMembers(ctx, q, &nb); err != nil {
		return nil, err
	}

	query, args, err = psql.Select(nodeColumns...).
		From("nodes").
		Where(sq.Eq{"notebook_id": notebookID}).
		OrderBy("position", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []nodeRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load nodes of %s: %w", notebookID, err)
	}
	nodes := make([]*models.Node, 0, len(rows))
	byID := make(map[string]*models.Node, len(rows))
	for _, r := range rows {
		n, err := r.node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
		byID[n.ID] = n
	}

	query, args, err = psql.Select("t.node_id", "t.tag").
		From("node_tags t").
		Join("nodes n ON n.id = t.node_id").
		Where(sq.Eq{"n.notebook_id": notebookID}).
		OrderBy("t.node_id", "t.tag").
		ToSql()
	if err != nil {
		return nil, err
	}
	var tagRows []tagRow
	if err := sqlx.SelectContext(ctx, q, &tagRows, query, args...); err != nil {
		return nil, fmt.Errorf("load tags of %s: %w", notebookID, err)
	}
	for _, t := range tagRows {
		if n, ok := byID[t.NodeID]; ok {
			n.Tags = append(n.Tags, t.Tag)
		}
	}

	root, err := models.AssembleTree(nb.RootID, nodes)
	if err != nil {
		return nil, fmt.Errorf("notebook %s: %w", notebookID, err)
	}
	nb.Root = root
	return &nb, nil
}

func (d *Database) notebookOf(ctx context.Context, q sqlx.QueryerContext, nodeID string) (string, error) {
	var notebookID string
	err := sqlx.GetContext(ctx, q, &notebookID, `SELECT notebook_id FROM nodes WHERE id = $1`, nodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: node %s", models.ErrNotFound, nodeID)
	}
	if err != nil {
		return "", fmt.Errorf("look up node %s: %w", nodeID, err)
	}
	return notebookID, nil
}

func (d *Database) NotebookOf(ctx context.Context, nodeID string) (string, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	return d.notebookOf(ctx, d.Db, nodeID)
}

func (d *Database) GetNotebooks(ctx context.Context, userID, notebookID string) ([]models.Notebook, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	ok, err := d.userExists(ctx, d.Db, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}

	if notebookID != "" {
		nb, err := d.loadNotebook(ctx, d.Db, notebookID, false)
		if err != nil {
			return nil, err
		}
		if err := access.Require(userID, nb, access.Read); err != nil {
			return nil, err
		}
		return []models.Notebook{*nb}, nil
	}

	query, args, err := psql.Select("n.id", "n.title", "n.owner_id", "n.root_id", "n.created_at", "n.modified_at").
		From("notebooks n").
		LeftJoin("notebook_members m ON m.notebook_id = n.id AND m.user_id = ?", userID).
		Where(sq.Or{sq.Eq{"n.owner_id": userID}, sq.Eq{"m.user_id": userID}}).
		OrderBy("n.created_at", "n.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var notebooks []models.Notebook
	if err := d.Db.SelectContext(ctx, &notebooks, query, args...); err != nil {
		return nil, fmt.Errorf("list notebooks of %s: %w", userID, err)
	}
	ptrs := make([]*models.Notebook, len(notebooks))
	for i := range notebooks {
		ptrs[i] = &notebooks[i]
	}
	if err := d.loadMembers(ctx, d.Db, ptrs...); err != nil {
		return nil, err
	}
	return notebooks, nil
}

func (d *Database) AddNotebook(ctx context.Context, userID, title string) (*models.Notebook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: notebook title is empty", models.ErrInvalidArgument)
	}
	d.Mu.Lock()
	defer d.Mu.Unlock()
	tx, err := d.Db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		tx.Rollback()
	}()

	ok, err := d.userExists(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}

	now := d.now()
	nb := &models.Notebook{
		ID:           d.newID(),
		Title:        title,
		OwnerID:      userID,
		RootID:       d.newID(),
		DateCreated:  now,
		DateModified: now,
	}
	query, args, err := psql.Insert("notebooks").
		Columns("id", "title", "owner_id", "root_id", "created_at", "modified_at").
		Values(nb.ID, nb.Title, nb.OwnerID, nb.RootID, now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert notebook: %w", err)
	}

	root := models.NewSection(title)
	root.ID = nb.RootID
	root.DateCreated, root.DateModified = now, now
	if err := d.insertNode(ctx, tx, nb.ID, root, 0); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	d.logger().Info("created notebook", "notebook", nb.ID, "owner", userID)
	return nb, nil
}

func (d *Database) DropNotebook(ctx context.Context, userID, notebookID string) error {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	tx, err := d.Db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		tx.Rollback()
	}()
	nb, err := d.loadNotebook(ctx, tx, notebookID, true)
	if err != nil {
		return err
	}
	if err := access.Require(userID, nb, access.Owner); err != nil {
		return err
	}
	query, args, err := psql.Delete("notebooks").Where(sq.Eq{"id": notebookID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete notebook %s: %w", notebookID, err)
	}
	return tx.Commit()
}

// mutate runs fn on the locked notebook holding nodeID and commits when fn
// succeeds. fn changes the in-memory tree and writes the affected rows.
func (d *Database) mutate(ctx context.Context, userID, nodeID string, min access.Permission, fn func(tx *sqlx.Tx, nb *models.Notebook, now time.Time) error) (*models.Notebook, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	tx, err := d.Db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		tx.Rollback()
	}()

	notebookID, err := d.notebookOf(ctx, tx, nodeID)
	if err != nil {
		return nil, err
	}
	nb, err := d.loadNotebook(ctx, tx, notebookID, true)
	if err != nil {
		return nil, err
	}
	if err := access.Require(userID, nb, min); err != nil {
		return nil, err
	}
	now := d.now()
	if err := fn(tx, nb, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notebooks SET modified_at = $1 WHERE id = $2`, now, nb.ID); err != nil {
		return nil, fmt.Errorf("touch notebook %s: %w", nb.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	nb.DateModified = now
	return nb, nil
}

func (d *Database) AddNode(ctx context.Context, in models.AddNodeInput) (*models.Notebook, error) {
	return d.mutate(ctx, in.UserID, in.ParentID, access.Write, func(tx *sqlx.Tx, nb *models.Notebook, now time.Time) error {
		n, err := models.NewNode(in.Type, in.Title)
		if err != nil {
			return err
		}
		if _, err := nb.CheckInsert(in.ParentID, in.Index); err != nil {
			return err
		}
		n.ID = d.newID()
		n.DateCreated, n.DateModified = now, now
		if err := nb.Insert(in.ParentID, in.Index, n); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE nodes SET position = position + 1 WHERE parent_id = $1 AND position >= $2`,
			in.ParentID, in.Index); err != nil {
			return fmt.Errorf("open gap %d in %s: %w", in.Index, in.ParentID, err)
		}
		return d.insertNode(ctx, tx, nb.ID, n, in.Index)
	})
}

func (d *Database) DropNode(ctx context.Context, userID, nodeID string) (*models.Notebook, error) {
	return d.mutate(ctx, userID, nodeID, access.Write, func(tx *sqlx.Tx, nb *models.Notebook, _ time.Time) error {
		if _, err := nb.CheckDrop(nodeID); err != nil {
			return err
		}
		parent := nb.Parent(nodeID)
		index, err := models.ChildIndex(parent, nodeID)
		if err != nil {
			return err
		}
		if _, err := nb.Remove(nodeID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, nodeID); err != nil {
			return fmt.Errorf("delete node %s: %w", nodeID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE nodes SET position = position - 1 WHERE parent_id = $1 AND position > $2`,
			parent.ID, index); err != nil {
			return fmt.Errorf("close gap in %s: %w", parent.ID, err)
		}
		return nil
	})
}

func (d *Database) MoveNode(ctx context.Context, in models.MoveNodeInput) (*models.Notebook, error) {
	return d.mutate(ctx, in.UserID, in.NodeID, access.Write, func(tx *sqlx.Tx, nb *models.Notebook, _ time.Time) error {
		oldParent := nb.Parent(in.NodeID)
		if err := nb.Move(in.NodeID, in.ParentID, in.Index); err != nil {
			return err
		}
		if err := d.persistOrder(ctx, tx, oldParent); err != nil {
			return err
		}
		if oldParent.ID != in.ParentID {
			return d.persistOrder(ctx, tx, nb.Find(in.ParentID))
		}
		return nil
	})
}

func (d *Database) EditNode(ctx context.Context, in models.EditNodeInput) (*models.Node, error) {
	column, ok := fieldColumns[in.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", models.ErrInvalidArgument, in.Field)
	}
	return d.updateNode(ctx, in.UserID, in.NodeID, func(tx *sqlx.Tx, n *models.Node) error {
		if err := n.SetField(in.Field, in.Value); err != nil {
			return err
		}
		query, args, err := psql.Update("nodes").
			Set(column, in.Value).
			Set("modified_at", n.DateModified).
			Where(sq.Eq{"id": n.ID}).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (d *Database) AddTags(ctx context.Context, userID, nodeID string, add []string) (*models.Node, error) {
	return d.updateNode(ctx, userID, nodeID, func(tx *sqlx.Tx, n *models.Node) error {
		var added []string
		n.Tags, added = tags.Add(n.Tags, strings.Join(add, ","))
		if len(added) == 0 {
			return nil
		}
		q := psql.Insert("node_tags").Columns("node_id", "tag")
		for _, t := range added {
			q = q.Values(n.ID, t)
		}
		query, args, err := q.Suffix("ON CONFLICT DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return d.touchNode(ctx, tx, n)
	})
}

func (d *Database) DropTag(ctx context.Context, userID, nodeID, tag string) (*models.Node, error) {
	return d.updateNode(ctx, userID, nodeID, func(tx *sqlx.Tx, n *models.Node) error {
		var removed bool
		n.Tags, removed = tags.Remove(n.Tags, tag)
		if !removed {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM node_tags WHERE node_id = $1 AND tag = $2`, n.ID, strings.TrimSpace(tag)); err != nil {
			return err
		}
		return d.touchNode(ctx, tx, n)
	})
}

// Execute reads the cell, runs the kernel outside any transaction and
// stores the output if the cell is still there.
func (d *Database) Execute(ctx context.Context, userID, nodeID string) (*models.Node, error) {
	input, err := d.executionInput(ctx, userID, nodeID)
	if err != nil {
		return nil, err
	}
	if d.Kernel == nil {
		return nil, fmt.Errorf("%w: no kernel configured", models.ErrInvalidArgument)
	}
	output, err := d.Kernel.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return d.EditNode(ctx, models.EditNodeInput{UserID: userID, NodeID: nodeID, Field: models.FieldOutput, Value: output})
}

func (d *Database) executionInput(ctx context.Context, userID, nodeID string) (string, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	notebookID, err := d.notebookOf(ctx, d.Db, nodeID)
	if err != nil {
		return "", err
	}
	nb, err := d.loadNotebook(ctx, d.Db, notebookID, false)
	if err != nil {
		return "", err
	}
	if err := access.Require(userID, nb, access.Write); err != nil {
		return "", err
	}
	n := nb.Find(nodeID)
	if n == nil || n.Type != models.TypeInputCell {
		return "", fmt.Errorf("%w: node %s is not an input cell", models.ErrInvalidArgument, nodeID)
	}
	return n.InputCell.Input, nil
}

func (d *Database) AddMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error) {
	return d.updateMembers(ctx, in, func(tx *sqlx.Tx, nb *models.Notebook) error {
		if err := nb.AddMember(in.TargetID, in.Role); err != nil {
			return err
		}
		query, args, err := psql.Insert("notebook_members").
			Columns("notebook_id", "user_id", "role").
			Values(nb.ID, in.TargetID, string(in.Role)).
			Suffix("ON CONFLICT (notebook_id, user_id) DO UPDATE SET role = EXCLUDED.role").
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (d *Database) DropMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error) {
	return d.updateMembers(ctx, in, func(tx *sqlx.Tx, nb *models.Notebook) error {
		if err := nb.RemoveMember(in.TargetID, in.Role); err != nil {
			return err
		}
		query, args, err := psql.Delete("notebook_members").
			Where(sq.Eq{"notebook_id": nb.ID, "user_id": in.TargetID, "role": string(in.Role)}).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (d *Database) updateMembers(ctx context.Context, in models.MemberInput, fn func(tx *sqlx.Tx, nb *models.Notebook) error) (*models.Notebook, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	tx, err := d.Db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		tx.Rollback()
	}()

	nb, err := d.loadNotebook(ctx, tx, in.NotebookID, true)
	if err != nil {
		return nil, err
	}
	if err := access.Require(in.UserID, nb, access.Owner); err != nil {
		return nil, err
	}
	ok, err := d.userExists(ctx, tx, in.TargetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownUser, in.TargetID)
	}
	if err := fn(tx, nb); err != nil {
		return nil, err
	}
	now := d.now()
	if _, err := tx.ExecContext(ctx, `UPDATE notebooks SET modified_at = $1 WHERE id = $2`, now, nb.ID); err != nil {
		return nil, fmt.Errorf("touch notebook %s: %w", nb.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	nb.DateModified = now
	return nb, nil
}

func (d *Database) updateNode(ctx context.Context, userID, nodeID string, fn func(tx *sqlx.Tx, n *models.Node) error) (*models.Node, error) {
	nb, err := d.mutate(ctx, userID, nodeID, access.Write, func(tx *sqlx.Tx, nb *models.Notebook, now time.Time) error {
		n := nb.Find(nodeID)
		n.DateModified = now
		return fn(tx, n)
	})
	if err != nil {
		return nil, err
	}
	return nb.Find(nodeID), nil
}

func (d *Database) touchNode(ctx context.Context, tx *sqlx.Tx, n *models.Node) error {
	_, err := tx.ExecContext(ctx, `UPDATE nodes SET modified_at = $1 WHERE id = $2`, n.DateModified, n.ID)
	return err
}

func (d *Database) insertNode(ctx context.Context, tx *sqlx.Tx, notebookID string, n *models.Node, position int) error {
	var parent any
	if n.ParentID != "" {
		parent = n.ParentID
	}
	var title, input, output, format, text string
	switch n.Type {
	case models.TypeSection:
		title = n.Section.Title
	case models.TypeInputCell:
		input, output = n.InputCell.Input, n.InputCell.Output
	case models.TypeTextCell:
		format, text = n.TextCell.Format, n.TextCell.TextData
	}
	query, args, err := psql.Insert("nodes").
		Columns("id", "notebook_id", "parent_id", "position", "node_type", "comment",
			"title", "input", "output", "format", "text_data", "created_at", "modified_at").
		Values(n.ID, notebookID, parent, position, string(n.Type), n.Comment,
			title, input, output, format, text, n.DateCreated, n.DateModified).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert node %s: %w", n.ID, err)
	}
	return nil
}

// persistOrder writes the parent and position of every child of section.
func (d *Database) persistOrder(ctx context.Context, tx *sqlx.Tx, section *models.Node) error {
	for i, c := range section.Children() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE nodes SET parent_id = $1, position = $2 WHERE id = $3`,
			section.ID, i, c.ID); err != nil {
			return fmt.Errorf("reorder %s: %w", section.ID, err)
		}
	}
	return nil
}
