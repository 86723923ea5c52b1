package utils

import (
	"time"

	"dovakin0007.com/notebook-grpc/internal/models"
	pb "dovakin0007.com/notebook-grpc/notebook"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func toTimestamp(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}

func fromTimestamp(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}

func UserToProto(u models.User) *pb.User {
	return &pb.User{
		Id:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: toTimestamp(u.DateCreated),
	}
}

func ProtoToUser(u *pb.User) models.User {
	if u == nil {
		return models.User{}
	}
	return models.User{
		ID:          u.Id,
		Username:    u.Username,
		Email:       u.Email,
		DateCreated: fromTimestamp(u.CreatedAt),
	}
}

func NodeToProto(n *models.Node) *pb.Node {
	if n == nil {
		return nil
	}
	out := &pb.Node{
		Id:         n.ID,
		Type:       string(n.Type),
		Comment:    n.Comment,
		Tags:       append([]string(nil), n.Tags...),
		CreatedAt:  toTimestamp(n.DateCreated),
		ModifiedAt: toTimestamp(n.DateModified),
	}
	switch n.Type {
	case models.TypeSection:
		s := &pb.Section{}
		if n.Section != nil {
			s.Title = n.Section.Title
			for _, c := range n.Section.Children {
				s.Children = append(s.Children, NodeToProto(c))
			}
		}
		out.Section = s
	case models.TypeInputCell:
		c := &pb.InputCell{}
		if n.InputCell != nil {
			c.Input, c.Output = n.InputCell.Input, n.InputCell.Output
		}
		out.InputCell = c
	case models.TypeTextCell:
		c := &pb.TextCell{}
		if n.TextCell != nil {
			c.Format, c.TextData = n.TextCell.Format, n.TextCell.TextData
		}
		out.TextCell = c
	}
	return out
}

// ProtoToNode rebuilds the variant named by Type and fills ParentID from the
// tree.
func ProtoToNode(p *pb.Node) (*models.Node, error) {
	if p == nil {
		return nil, nil
	}
	title := ""
	if p.Section != nil {
		title = p.Section.Title
	}
	n, err := models.NewNode(models.NodeType(p.Type), title)
	if err != nil {
		return nil, err
	}
	n.ID = p.Id
	n.Comment = p.Comment
	n.Tags = append([]string(nil), p.Tags...)
	n.DateCreated = fromTimestamp(p.CreatedAt)
	n.DateModified = fromTimestamp(p.ModifiedAt)
	switch n.Type {
	case models.TypeSection:
		for _, pc := range p.GetChildren() {
			c, err := ProtoToNode(pc)
			if err != nil {
				return nil, err
			}
			c.ParentID = n.ID
			n.Section.Children = append(n.Section.Children, c)
		}
	case models.TypeInputCell:
		if p.InputCell != nil {
			n.InputCell.Input, n.InputCell.Output = p.InputCell.Input, p.InputCell.Output
		}
	case models.TypeTextCell:
		if p.TextCell != nil {
			n.TextCell.Format, n.TextCell.TextData = p.TextCell.Format, p.TextCell.TextData
		}
	}
	return n, nil
}

func NotebookToProto(nb *models.Notebook) *pb.Notebook {
	if nb == nil {
		return nil
	}
	return &pb.Notebook{
		Id:         nb.ID,
		Title:      nb.Title,
		OwnerId:    nb.OwnerID,
		RootId:     nb.RootID,
		WriterIds:  append([]string(nil), nb.WriterIDs...),
		ReaderIds:  append([]string(nil), nb.ReaderIDs...),
		CreatedAt:  toTimestamp(nb.DateCreated),
		ModifiedAt: toTimestamp(nb.DateModified),
		Root:       NodeToProto(nb.Root),
	}
}

func ProtoToNotebook(p *pb.Notebook) (*models.Notebook, error) {
	if p == nil {
		return nil, nil
	}
	root, err := ProtoToNode(p.Root)
	if err != nil {
		return nil, err
	}
	nb := &models.Notebook{
		ID:           p.Id,
		Title:        p.Title,
		OwnerID:      p.OwnerId,
		RootID:       p.RootId,
		WriterIDs:    append([]string(nil), p.WriterIds...),
		ReaderIDs:    append([]string(nil), p.ReaderIds...),
		DateCreated:  fromTimestamp(p.CreatedAt),
		DateModified: fromTimestamp(p.ModifiedAt),
		Root:         root,
	}
	nb.Relink()
	return nb, nil
}

func ChangeEventToProto(ev models.ChangeEvent) *pb.ChangeEvent {
	return &pb.ChangeEvent{
		NotebookId: ev.NotebookID,
		NodeId:     ev.NodeID,
		UserId:     ev.UserID,
		Kind:       ev.Kind,
		At:         toTimestamp(ev.At),
	}
}

func ProtoToChangeEvent(p *pb.ChangeEvent) models.ChangeEvent {
	if p == nil {
		return models.ChangeEvent{}
	}
	return models.ChangeEvent{
		NotebookID: p.NotebookId,
		NodeID:     p.NodeId,
		UserID:     p.UserId,
		Kind:       p.Kind,
		At:         fromTimestamp(p.At),
	}
}
