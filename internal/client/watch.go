package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/utils"
	pb "dovakin0007.com/notebook-grpc/notebook"
)

func invalidRole(r models.Role) error {
	return fmt.Errorf("%w: unknown role %q", models.ErrInvalidArgument, r)
}

// Watch opens the change stream of a notebook. Access errors are returned
// here; later stream failures close the channel.
func (c *Client) Watch(ctx context.Context, userID, notebookID string) (<-chan models.ChangeEvent, error) {
	stream, err := c.rpc.Watch(ctx, &pb.WatchRequest{UserId: userID, NotebookId: notebookID})
	if err != nil {
		return nil, utils.FromStatus(err)
	}
	// The server sends headers once the subscription is live.
	md, err := stream.Header()
	if err != nil {
		return nil, utils.FromStatus(err)
	}
	if md == nil {
		_, err := stream.Recv()
		if err == nil || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: watch stream closed", models.ErrTransportFailure)
		}
		return nil, utils.FromStatus(err)
	}

	out := make(chan models.ChangeEvent)
	go func() {
		defer close(out)
		for {
			ev, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.Warn("watch stream ended", "notebook", notebookID, "error", utils.FromStatus(err))
				}
				return
			}
			select {
			case out <- utils.ProtoToChangeEvent(ev):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
