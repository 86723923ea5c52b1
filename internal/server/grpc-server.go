package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"time"

	"dovakin0007.com/notebook-grpc/internal/access"
	"dovakin0007.com/notebook-grpc/internal/events"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/store"
	"dovakin0007.com/notebook-grpc/internal/utils"
	pb "dovakin0007.com/notebook-grpc/notebook"
	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GrpcServer struct {
	Addr         string
	ServiceName  string
	grpcServer   *grpc.Server
	healthServer *health.Server
	logger       hclog.Logger
}

type notebookServiceServer struct {
	pb.UnimplementedNotebookServiceServer

	store  store.Store
	bus    events.Bus
	logger hclog.Logger
	now    func() time.Time
}

// NewNotebookServiceServer serves st over gRPC. bus may be nil, which
// disables change events and Watch.
func NewNotebookServiceServer(st store.Store, bus events.Bus, logger hclog.Logger) pb.NotebookServiceServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &notebookServiceServer{
		store:  st,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// publish announces an accepted mutation. A bus failure is logged; the
// mutation itself already succeeded.
func (s *notebookServiceServer) publish(ctx context.Context, notebookID, nodeID, userID, kind string) {
	if s.bus == nil || notebookID == "" {
		return
	}
	ev := models.ChangeEvent{NotebookID: notebookID, NodeID: nodeID, UserID: userID, Kind: kind, At: s.now().UTC()}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish change", "notebook", notebookID, "kind", kind, "error", err)
	}
}

func (s *notebookServiceServer) ConnectUser(ctx context.Context, req *pb.ConnectUserRequest) (*pb.UserResponse, error) {
	if req == nil || req.Username == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}
	u, err := s.store.ConnectUser(ctx, req.Username, req.Email)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	s.logger.Debug("user connected", "user", u.ID)
	return &pb.UserResponse{User: utils.UserToProto(*u)}, nil
}

func (s *notebookServiceServer) GetUsers(ctx context.Context, _ *pb.GetUsersRequest) (*pb.GetUsersResponse, error) {
	users, err := s.store.GetUsers(ctx)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	out := make([]*pb.User, 0, len(users))
	for _, u := range users {
		out = append(out, utils.UserToProto(u))
	}
	return &pb.GetUsersResponse{Users: out}, nil
}

func (s *notebookServiceServer) GetNotebooks(ctx context.Context, req *pb.GetNotebooksRequest) (*pb.GetNotebooksResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	notebooks, err := s.store.GetNotebooks(ctx, req.UserId, req.GetNotebookId())
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	out := make([]*pb.Notebook, 0, len(notebooks))
	for i := range notebooks {
		out = append(out, utils.NotebookToProto(&notebooks[i]))
	}
	return &pb.GetNotebooksResponse{Notebooks: out}, nil
}

func (s *notebookServiceServer) AddNotebook(ctx context.Context, req *pb.AddNotebookRequest) (*pb.NotebookResponse, error) {
	if req == nil || req.UserId == "" || req.Title == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and title are required")
	}
	nb, err := s.store.AddNotebook(ctx, req.UserId, req.Title)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	return &pb.NotebookResponse{Notebook: utils.NotebookToProto(nb)}, nil
}

func (s *notebookServiceServer) DropNotebook(ctx context.Context, req *pb.DropNotebookRequest) (*pb.DropNotebookResponse, error) {
	if req == nil || req.UserId == "" || req.NotebookId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and notebook_id are required")
	}
	if err := s.store.DropNotebook(ctx, req.UserId, req.NotebookId); err != nil {
		return nil, utils.ToStatus(err)
	}
	s.publish(ctx, req.NotebookId, "", req.UserId, "dropNotebook")
	return &pb.DropNotebookResponse{Success: true}, nil
}

func (s *notebookServiceServer) AddNode(ctx context.Context, req *pb.AddNodeRequest) (*pb.NotebookResponse, error) {
	if req == nil || req.UserId == "" || req.ParentId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and parent_id are required")
	}
	nb, err := s.store.AddNode(ctx, models.AddNodeInput{
		UserID:   req.UserId,
		ParentID: req.ParentId,
		Index:    int(req.Index),
		Type:     models.NodeType(req.NodeType),
		Title:    req.Title,
	})
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	s.publish(ctx, nb.ID, req.ParentId, req.UserId, "addNode")
	return &pb.NotebookResponse{Notebook: utils.NotebookToProto(nb)}, nil
}

func (s *notebookServiceServer) DropNode(ctx context.Context, req *pb.DropNodeRequest) (*pb.NotebookResponse, error) {
	if req == nil || req.UserId == "" || req.NodeId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and node_id are required")
	}
	nb, err := s.store.DropNode(ctx, req.UserId, req.NodeId)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	s.publish(ctx, nb.ID, req.NodeId, req.UserId, "dropNode")
	return &pb.NotebookResponse{Notebook: utils.NotebookToProto(nb)}, nil
}

func (s *notebookServiceServer) MoveNode(ctx context.Context, req *pb.MoveNodeRequest) (*pb.NotebookResponse, error) {
	if req == nil || req.UserId == "" || req.NodeId == "" || req.ParentId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id, node_id and parent_id are required")
	}
	nb, err := s.store.MoveNode(ctx, models.MoveNodeInput{
		UserID:   req.UserId,
		NodeID:   req.NodeId,
		ParentID: req.ParentId,
		Index:    int(req.Index),
	})
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	s.publish(ctx, nb.ID, req.NodeId, req.UserId, "moveNode")
	return &pb.NotebookResponse{Notebook: utils.NotebookToProto(nb)}, nil
}

func (s *notebookServiceServer) EditNode(ctx context.Context, req *pb.EditNodeRequest) (*pb.NodeResponse, error) {
	if req == nil || req.UserId == "" || req.NodeId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and node_id are required")
	}
	field, err := utils.NormalizeMask(req.GetUpdateMask())
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	n, err := s.store.EditNode(ctx, models.EditNodeInput{UserID: req.UserId, NodeID: req.NodeId, Field: field, Value: req.Value})
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	return s.nodeChanged(ctx, req.UserId, n, "editNode")
}

func (s *notebookServiceServer) AddTags(ctx context.Context, req *pb.AddTagsRequest) (*pb.NodeResponse, error) {
	if req == nil || req.UserId == "" || req.NodeId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and node_id are required")
	}
	n, err := s.store.AddTags(ctx, req.UserId, req.NodeId, req.Tags)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	return s.nodeChanged(ctx, req.UserId, n, "addTags")
}

func (s *notebookServiceServer) DropTag(ctx context.Context, req *pb.DropTagRequest) (*pb.NodeResponse, error) {
	if req == nil || req.UserId == "" || req.NodeId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and node_id are required")
	}
	n, err := s.store.DropTag(ctx, req.UserId, req.NodeId, req.Tag)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	return s.nodeChanged(ctx, req.UserId, n, "dropTag")
}

func (s *notebookServiceServer) Execute(ctx context.Context, req *pb.ExecuteRequest) (*pb.NodeResponse, error) {
	if req == nil || req.UserId == "" || req.NodeId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and node_id are required")
	}
	start := time.Now()
	n, err := s.store.Execute(ctx, req.UserId, req.NodeId)
	s.logger.Debug("executed cell", "node", req.NodeId, "duration", time.Since(start), "error", err)
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	return s.nodeChanged(ctx, req.UserId, n, "execute")
}

// nodeChanged publishes a node level change when the store can tell which
// notebook holds the node.
func (s *notebookServiceServer) nodeChanged(ctx context.Context, userID string, n *models.Node, kind string) (*pb.NodeResponse, error) {
	if loc, ok := s.store.(store.Locator); ok && s.bus != nil {
		if id, err := loc.NotebookOf(ctx, n.ID); err == nil {
			s.publish(ctx, id, n.ID, userID, kind)
		}
	}
	return &pb.NodeResponse{Node: utils.NodeToProto(n)}, nil
}

func (s *notebookServiceServer) member(ctx context.Context, req *pb.MemberRequest, role models.Role, add bool) (*pb.NotebookResponse, error) {
	if req == nil || req.UserId == "" || req.NotebookId == "" || req.TargetId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id, notebook_id and target_id are required")
	}
	in := models.MemberInput{UserID: req.UserId, NotebookID: req.NotebookId, TargetID: req.TargetId, Role: role}
	var (
		nb   *models.Notebook
		err  error
		kind string
	)
	if add {
		nb, err = s.store.AddMember(ctx, in)
		kind = "add" + string(role)
	} else {
		nb, err = s.store.DropMember(ctx, in)
		kind = "drop" + string(role)
	}
	if err != nil {
		return nil, utils.ToStatus(err)
	}
	s.publish(ctx, nb.ID, "", req.UserId, kind)
	return &pb.NotebookResponse{Notebook: utils.NotebookToProto(nb)}, nil
}

func (s *notebookServiceServer) AddWriter(ctx context.Context, req *pb.MemberRequest) (*pb.NotebookResponse, error) {
	return s.member(ctx, req, models.RoleWriter, true)
}

func (s *notebookServiceServer) AddReader(ctx context.Context, req *pb.MemberRequest) (*pb.NotebookResponse, error) {
	return s.member(ctx, req, models.RoleReader, true)
}

func (s *notebookServiceServer) DropWriter(ctx context.Context, req *pb.MemberRequest) (*pb.NotebookResponse, error) {
	return s.member(ctx, req, models.RoleWriter, false)
}

func (s *notebookServiceServer) DropReader(ctx context.Context, req *pb.MemberRequest) (*pb.NotebookResponse, error) {
	return s.member(ctx, req, models.RoleReader, false)
}

// Watch relays the change events of one notebook until the client goes away.
// The caller needs read access when the stream opens.
func (s *notebookServiceServer) Watch(req *pb.WatchRequest, stream grpc.ServerStreamingServer[pb.ChangeEvent]) error {
	if req == nil || req.UserId == "" || req.NotebookId == "" {
		return status.Error(codes.InvalidArgument, "user_id and notebook_id are required")
	}
	if s.bus == nil {
		return status.Error(codes.Unimplemented, "change events are disabled")
	}
	ctx := stream.Context()
	nbs, err := s.store.GetNotebooks(ctx, req.UserId, req.NotebookId)
	if err != nil {
		return utils.ToStatus(err)
	}
	if len(nbs) == 0 {
		return utils.ToStatus(fmt.Errorf("%w: notebook %s", models.ErrNotFound, req.NotebookId))
	}
	if err := access.Require(req.UserId, &nbs[0], access.Read); err != nil {
		return utils.ToStatus(err)
	}

	evs, cancel, err := s.bus.Subscribe(ctx, req.NotebookId)
	if err != nil {
		return status.Errorf(codes.Unavailable, "subscribe: %v", err)
	}
	defer cancel()
	if err := stream.SendHeader(metadata.Pairs("notebook-id", req.NotebookId)); err != nil {
		return err
	}
	s.logger.Debug("watch opened", "notebook", req.NotebookId, "user", req.UserId)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evs:
			if !ok {
				return nil
			}
			if err := stream.Send(utils.ChangeEventToProto(ev)); err != nil {
				return err
			}
		}
	}
}

// metricsInterceptor records the latency and failures of every unary call.
func metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	method := path.Base(info.FullMethod)
	metrics.MeasureSince([]string{"notebook", "server", method}, start)
	if err != nil {
		metrics.IncrCounterWithLabels([]string{"notebook", "server", "errors"}, 1,
			[]metrics.Label{{Name: "method", Value: method}, {Name: "code", Value: status.Code(err).String()}})
	}
	return resp, err
}

func NewGrpcServer(addr, serviceName string, st store.Store, bus events.Bus, logger hclog.Logger) *GrpcServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	g := &GrpcServer{
		Addr:         addr,
		ServiceName:  serviceName,
		grpcServer:   grpc.NewServer(grpc.ChainUnaryInterceptor(metricsInterceptor)),
		healthServer: health.NewServer(),
		logger:       logger,
	}
	pb.RegisterNotebookServiceServer(g.grpcServer, NewNotebookServiceServer(st, bus, logger.Named("service")))
	grpc_health_v1.RegisterHealthServer(g.grpcServer, g.healthServer)
	return g
}

// Serve blocks until the server stops. It returns nil after End.
func (g *GrpcServer) Serve(lis net.Listener) error {
	g.healthServer.SetServingStatus(g.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	g.logger.Info("gRPC server running", "addr", lis.Addr().String())
	err := g.grpcServer.Serve(lis)
	g.healthServer.SetServingStatus(g.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (g *GrpcServer) Run() error {
	lis, err := net.Listen("tcp", g.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.Addr, err)
	}
	return g.Serve(lis)
}

func (g *GrpcServer) End() {
	g.logger.Info("stopping gRPC server")
	g.healthServer.Shutdown()
	g.grpcServer.GracefulStop()
}
