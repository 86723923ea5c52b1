// Package client is the store.Store of a remote notebook server.
package client

import (
	"context"
	"time"

	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/utils"
	pb "dovakin0007.com/notebook-grpc/notebook"
	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Client struct {
	rpc    *pb.NotebookServiceClient
	conn   *grpc.ClientConn
	logger hclog.Logger
}

// Dial connects to addr without transport security.
func Dial(addr string, logger hclog.Logger, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, utils.FromStatus(err)
	}
	c := New(conn, logger)
	c.conn = conn
	return c, nil
}

func New(cc grpc.ClientConnInterface, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{rpc: pb.NewNotebookServiceClient(cc), logger: logger}
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// done records the call and maps its error onto the notebook taxonomy.
func (c *Client) done(method string, start time.Time, err error) error {
	metrics.MeasureSince([]string{"notebook", "rpc", method}, start)
	if err == nil {
		return nil
	}
	metrics.IncrCounter([]string{"notebook", "rpc", method, "errors"}, 1)
	err = utils.FromStatus(err)
	c.logger.Debug("request failed", "method", method, "error", err)
	return err
}

func (c *Client) ConnectUser(ctx context.Context, username, email string) (*models.User, error) {
	start := time.Now()
	resp, err := c.rpc.ConnectUser(ctx, &pb.ConnectUserRequest{Username: username, Email: email})
	if err = c.done("ConnectUser", start, err); err != nil {
		return nil, err
	}
	u := utils.ProtoToUser(resp.User)
	return &u, nil
}

func (c *Client) GetUsers(ctx context.Context) ([]models.User, error) {
	start := time.Now()
	resp, err := c.rpc.GetUsers(ctx, &pb.GetUsersRequest{})
	if err = c.done("GetUsers", start, err); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(resp.Users))
	for _, u := range resp.Users {
		users = append(users, utils.ProtoToUser(u))
	}
	return users, nil
}

func (c *Client) GetNotebooks(ctx context.Context, userID, notebookID string) ([]models.Notebook, error) {
	start := time.Now()
	resp, err := c.rpc.GetNotebooks(ctx, &pb.GetNotebooksRequest{UserId: userID, NotebookId: notebookID})
	if err = c.done("GetNotebooks", start, err); err != nil {
		return nil, err
	}
	out := make([]models.Notebook, 0, len(resp.Notebooks))
	for _, p := range resp.Notebooks {
		nb, err := utils.ProtoToNotebook(p)
		if err != nil {
			return nil, err
		}
		out = append(out, *nb)
	}
	return out, nil
}

func (c *Client) AddNotebook(ctx context.Context, userID, title string) (*models.Notebook, error) {
	start := time.Now()
	resp, err := c.rpc.AddNotebook(ctx, &pb.AddNotebookRequest{UserId: userID, Title: title})
	if err = c.done("AddNotebook", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNotebook(resp.Notebook)
}

func (c *Client) DropNotebook(ctx context.Context, userID, notebookID string) error {
	start := time.Now()
	_, err := c.rpc.DropNotebook(ctx, &pb.DropNotebookRequest{UserId: userID, NotebookId: notebookID})
	return c.done("DropNotebook", start, err)
}

func (c *Client) AddNode(ctx context.Context, in models.AddNodeInput) (*models.Notebook, error) {
	start := time.Now()
	resp, err := c.rpc.AddNode(ctx, &pb.AddNodeRequest{
		UserId:   in.UserID,
		ParentId: in.ParentID,
		Index:    int32(in.Index),
		NodeType: string(in.Type),
		Title:    in.Title,
	})
	if err = c.done("AddNode", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNotebook(resp.Notebook)
}

func (c *Client) DropNode(ctx context.Context, userID, nodeID string) (*models.Notebook, error) {
	start := time.Now()
	resp, err := c.rpc.DropNode(ctx, &pb.DropNodeRequest{UserId: userID, NodeId: nodeID})
	if err = c.done("DropNode", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNotebook(resp.Notebook)
}

func (c *Client) MoveNode(ctx context.Context, in models.MoveNodeInput) (*models.Notebook, error) {
	start := time.Now()
	resp, err := c.rpc.MoveNode(ctx, &pb.MoveNodeRequest{
		UserId:   in.UserID,
		NodeId:   in.NodeID,
		ParentId: in.ParentID,
		Index:    int32(in.Index),
	})
	if err = c.done("MoveNode", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNotebook(resp.Notebook)
}

func (c *Client) EditNode(ctx context.Context, in models.EditNodeInput) (*models.Node, error) {
	start := time.Now()
	resp, err := c.rpc.EditNode(ctx, &pb.EditNodeRequest{
		UserId:     in.UserID,
		NodeId:     in.NodeID,
		UpdateMask: utils.FieldMask(in.Field),
		Value:      in.Value,
	})
	if err = c.done("EditNode", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNode(resp.Node)
}

func (c *Client) AddTags(ctx context.Context, userID, nodeID string, tags []string) (*models.Node, error) {
	start := time.Now()
	resp, err := c.rpc.AddTags(ctx, &pb.AddTagsRequest{UserId: userID, NodeId: nodeID, Tags: tags})
	if err = c.done("AddTags", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNode(resp.Node)
}

func (c *Client) DropTag(ctx context.Context, userID, nodeID, tag string) (*models.Node, error) {
	start := time.Now()
	resp, err := c.rpc.DropTag(ctx, &pb.DropTagRequest{UserId: userID, NodeId: nodeID, Tag: tag})
	if err = c.done("DropTag", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNode(resp.Node)
}

func (c *Client) Execute(ctx context.Context, userID, nodeID string) (*models.Node, error) {
	start := time.Now()
	resp, err := c.rpc.Execute(ctx, &pb.ExecuteRequest{UserId: userID, NodeId: nodeID})
	if err = c.done("Execute", start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNode(resp.Node)
}

func (c *Client) AddMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error) {
	req := &pb.MemberRequest{UserId: in.UserID, NotebookId: in.NotebookID, TargetId: in.TargetID}
	start := time.Now()
	var (
		resp   *pb.NotebookResponse
		err    error
		method string
	)
	switch in.Role {
	case models.RoleWriter:
		method = "AddWriter"
		resp, err = c.rpc.AddWriter(ctx, req)
	case models.RoleReader:
		method = "AddReader"
		resp, err = c.rpc.AddReader(ctx, req)
	default:
		return nil, invalidRole(in.Role)
	}
	if err = c.done(method, start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNotebook(resp.Notebook)
}

func (c *Client) DropMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error) {
	req := &pb.MemberRequest{UserId: in.UserID, NotebookId: in.NotebookID, TargetId: in.TargetID}
	start := time.Now()
	var (
		resp   *pb.NotebookResponse
		err    error
		method string
	)
	switch in.Role {
	case models.RoleWriter:
		method = "DropWriter"
		resp, err = c.rpc.DropWriter(ctx, req)
	case models.RoleReader:
		method = "DropReader"
		resp, err = c.rpc.DropReader(ctx, req)
	default:
		return nil, invalidRole(in.Role)
	}
	if err = c.done(method, start, err); err != nil {
		return nil, err
	}
	return utils.ProtoToNotebook(resp.Notebook)
}
