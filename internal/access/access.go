// Package access derives a user's permission on a notebook from its owner,
// writer and reader sets. Permissions are never stored.
package access

import (
	"fmt"
	"slices"

	"dovakin0007.com/notebook-grpc/internal/models"
)

type Permission int

const (
	None Permission = iota
	Read
	Write
	Owner
)

func (p Permission) String() string {
	switch p {
	case Owner:
		return "owner"
	case Write:
		return "write"
	case Read:
		return "read"
	}
	return "none"
}

func (p Permission) AtLeast(min Permission) bool {
	return p >= min
}

// Resolve evaluates owner, then writer, then reader membership. The owner
// wins even when the notebook also lists it as a collaborator.
func Resolve(userID string, nb *models.Notebook) Permission {
	switch {
	case nb == nil || userID == "":
		return None
	case nb.OwnerID == userID:
		return Owner
	case slices.Contains(nb.WriterIDs, userID):
		return Write
	case slices.Contains(nb.ReaderIDs, userID):
		return Read
	}
	return None
}

// Require fails with models.ErrPermissionDenied when userID holds less than min.
func Require(userID string, nb *models.Notebook, min Permission) error {
	if p := Resolve(userID, nb); !p.AtLeast(min) {
		id := ""
		if nb != nil {
			id = nb.ID
		}
		return fmt.Errorf("%w: %s needs %s on notebook %s, has %s", models.ErrPermissionDenied, userID, min, id, p)
	}
	return nil
}
