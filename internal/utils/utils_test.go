package utils_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

func TestStatusKeepsTaxonomy(t *testing.T) {
	for reason, sentinel := range models.Taxonomy {
		t.Run(reason, func(t *testing.T) {
			err := utils.ToStatus(fmt.Errorf("%w: node n-1", sentinel))
			_, ok := status.FromError(err)
			require.True(t, ok)

			back := utils.FromStatus(err)
			assert.ErrorIs(t, back, sentinel)
			assert.Contains(t, back.Error(), "node n-1")
		})
	}
}

func TestToStatusCodes(t *testing.T) {
	assert.Equal(t, codes.PermissionDenied, status.Code(utils.ToStatus(models.ErrPermissionDenied)))
	assert.Equal(t, codes.OutOfRange, status.Code(utils.ToStatus(models.ErrInvalidPosition)))
	assert.Equal(t, codes.Internal, status.Code(utils.ToStatus(errors.New("disk on fire"))))
	assert.Equal(t, codes.Canceled, status.Code(utils.ToStatus(context.Canceled)))
	assert.Nil(t, utils.ToStatus(nil))
}

func TestFromStatusTransport(t *testing.T) {
	assert.ErrorIs(t, utils.FromStatus(status.Error(codes.Unavailable, "connection refused")), models.ErrTransportFailure)
	assert.ErrorIs(t, utils.FromStatus(status.Error(codes.Canceled, "canceled")), models.ErrTransportFailure)
	assert.ErrorIs(t, utils.FromStatus(status.Error(codes.DeadlineExceeded, "slow")), models.ErrTimeout)
	assert.ErrorIs(t, utils.FromStatus(errors.New("eof")), models.ErrTransportFailure)
}

func TestNormalizeMask(t *testing.T) {
	field, err := utils.NormalizeMask(utils.FieldMask(models.FieldTextData))
	require.NoError(t, err)
	assert.Equal(t, models.FieldTextData, field)

	_, err = utils.NormalizeMask(&fieldmaskpb.FieldMask{Paths: []string{"comment", "title"}})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = utils.NormalizeMask(&fieldmaskpb.FieldMask{Paths: []string{"owner"}})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = utils.NormalizeMask(nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestNotebookConversion(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	root := models.NewSection("Lab")
	root.ID = "r"
	root.DateCreated = at
	cell := models.NewInputCell("1+1")
	cell.ID = "c"
	cell.InputCell.Output = "2"
	cell.Tags = []string{"math"}
	text := models.NewTextCell("markdown", "# hi")
	text.ID = "t"
	root.Section.Children = []*models.Node{cell, text}
	nb := &models.Notebook{ID: "nb", Title: "Lab", OwnerID: "u", RootID: "r", WriterIDs: []string{"w"}, Root: root}
	nb.Relink()

	back, err := utils.ProtoToNotebook(utils.NotebookToProto(nb))
	require.NoError(t, err)
	assert.Equal(t, nb, back)
	assert.Equal(t, "r", back.Find("c").ParentID)
}

func TestProtoToNodeRejectsUnknownType(t *testing.T) {
	p := utils.NodeToProto(models.NewTextCell("", ""))
	p.Type = "Widget"
	_, err := utils.ProtoToNode(p)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
