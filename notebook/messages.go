// Package notebook holds the wire messages and the gRPC service definition
// of the notebook service. Messages travel as JSON (see codec.go).
package notebook

import (
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type User struct {
	Id        string                 `json:"id"`
	Username  string                 `json:"username"`
	Email     string                 `json:"email,omitempty"`
	CreatedAt *timestamppb.Timestamp `json:"createdAt,omitempty"`
}

// Node carries exactly one of Section, InputCell and TextCell, matching Type.
type Node struct {
	Id         string                 `json:"id"`
	Type       string                 `json:"type"`
	Comment    string                 `json:"comment,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	CreatedAt  *timestamppb.Timestamp `json:"createdAt,omitempty"`
	ModifiedAt *timestamppb.Timestamp `json:"modifiedAt,omitempty"`

	Section   *Section   `json:"section,omitempty"`
	InputCell *InputCell `json:"inputCell,omitempty"`
	TextCell  *TextCell  `json:"textCell,omitempty"`
}

type Section struct {
	Title    string  `json:"title"`
	Children []*Node `json:"children,omitempty"`
}

type InputCell struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type TextCell struct {
	Format   string `json:"format"`
	TextData string `json:"textData"`
}

// Notebook has no Root when sent as a summary.
type Notebook struct {
	Id         string                 `json:"id"`
	Title      string                 `json:"title"`
	OwnerId    string                 `json:"ownerId"`
	RootId     string                 `json:"rootId"`
	WriterIds  []string               `json:"writerIds,omitempty"`
	ReaderIds  []string               `json:"readerIds,omitempty"`
	CreatedAt  *timestamppb.Timestamp `json:"createdAt,omitempty"`
	ModifiedAt *timestamppb.Timestamp `json:"modifiedAt,omitempty"`
	Root       *Node                  `json:"root,omitempty"`
}

type ConnectUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type UserResponse struct {
	User *User `json:"user"`
}

type GetUsersRequest struct{}

type GetUsersResponse struct {
	Users []*User `json:"users"`
}

type GetNotebooksRequest struct {
	UserId     string `json:"userId"`
	NotebookId string `json:"notebookId,omitempty"`
}

type GetNotebooksResponse struct {
	Notebooks []*Notebook `json:"notebooks"`
}

type AddNotebookRequest struct {
	UserId string `json:"userId"`
	Title  string `json:"title"`
}

type DropNotebookRequest struct {
	UserId     string `json:"userId"`
	NotebookId string `json:"notebookId"`
}

type DropNotebookResponse struct {
	Success bool `json:"success"`
}

type NotebookResponse struct {
	Notebook *Notebook `json:"notebook"`
}

type AddNodeRequest struct {
	UserId   string `json:"userId"`
	ParentId string `json:"parentId"`
	Index    int32  `json:"index"`
	NodeType string `json:"nodeType"`
	Title    string `json:"title,omitempty"`
}

type DropNodeRequest struct {
	UserId string `json:"userId"`
	NodeId string `json:"nodeId"`
}

type MoveNodeRequest struct {
	UserId   string `json:"userId"`
	NodeId   string `json:"nodeId"`
	ParentId string `json:"parentId"`
	Index    int32  `json:"index"`
}

// EditNodeRequest names the edited field as the single path of UpdateMask.
type EditNodeRequest struct {
	UserId     string                 `json:"userId"`
	NodeId     string                 `json:"nodeId"`
	UpdateMask *fieldmaskpb.FieldMask `json:"updateMask"`
	Value      string                 `json:"value"`
}

type AddTagsRequest struct {
	UserId string   `json:"userId"`
	NodeId string   `json:"nodeId"`
	Tags   []string `json:"tags"`
}

type DropTagRequest struct {
	UserId string `json:"userId"`
	NodeId string `json:"nodeId"`
	Tag    string `json:"tag"`
}

type ExecuteRequest struct {
	UserId string `json:"userId"`
	NodeId string `json:"nodeId"`
}

type NodeResponse struct {
	Node *Node `json:"node"`
}

type MemberRequest struct {
	UserId     string `json:"userId"`
	NotebookId string `json:"notebookId"`
	TargetId   string `json:"targetId"`
}

type WatchRequest struct {
	UserId     string `json:"userId"`
	NotebookId string `json:"notebookId"`
}

type ChangeEvent struct {
	NotebookId string                 `json:"notebookId"`
	NodeId     string                 `json:"nodeId,omitempty"`
	UserId     string                 `json:"userId"`
	Kind       string                 `json:"kind"`
	At         *timestamppb.Timestamp `json:"at,omitempty"`
}

func (x *EditNodeRequest) GetUpdateMask() *fieldmaskpb.FieldMask {
	if x != nil {
		return x.UpdateMask
	}
	return nil
}

func (x *GetNotebooksRequest) GetNotebookId() string {
	if x != nil {
		return x.NotebookId
	}
	return ""
}

func (x *Node) GetChildren() []*Node {
	if x != nil && x.Section != nil {
		return x.Section.Children
	}
	return nil
}
