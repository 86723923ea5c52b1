// Package store defines the notebook store contract shared by the in-process
// store, the PostgreSQL store and the gRPC client. The store is the authority:
// it assigns ids and timestamps and enforces permissions, positions and
// cycles regardless of what the caller already checked.
package store

import (
	"context"

	"dovakin0007.com/notebook-grpc/internal/models"
)

// Store requests are keyed by the acting user's id; there is no separate
// session token.
type Store interface {
	ConnectUser(ctx context.Context, username, email string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)

	// GetNotebooks returns summaries of the user's notebooks, or the full
	// tree of notebookID when it is not empty.
	GetNotebooks(ctx context.Context, userID, notebookID string) ([]models.Notebook, error)
	AddNotebook(ctx context.Context, userID, title string) (*models.Notebook, error)
	DropNotebook(ctx context.Context, userID, notebookID string) error

	AddNode(ctx context.Context, in models.AddNodeInput) (*models.Notebook, error)
	DropNode(ctx context.Context, userID, nodeID string) (*models.Notebook, error)
	MoveNode(ctx context.Context, in models.MoveNodeInput) (*models.Notebook, error)
	EditNode(ctx context.Context, in models.EditNodeInput) (*models.Node, error)
	AddTags(ctx context.Context, userID, nodeID string, tags []string) (*models.Node, error)
	DropTag(ctx context.Context, userID, nodeID, tag string) (*models.Node, error)
	Execute(ctx context.Context, userID, nodeID string) (*models.Node, error)

	AddMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error)
	DropMember(ctx context.Context, in models.MemberInput) (*models.Notebook, error)
}

// Watcher is implemented by stores that can announce changes to a notebook.
// The channel is closed when ctx ends or the stream fails.
type Watcher interface {
	Watch(ctx context.Context, userID, notebookID string) (<-chan models.ChangeEvent, error)
}

// Locator is implemented by stores that can name the notebook holding a node.
type Locator interface {
	NotebookOf(ctx context.Context, nodeID string) (string, error)
}
