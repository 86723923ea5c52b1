package models

import (
	"fmt"
	"slices"
)

func (nb *Notebook) members(role Role) *[]string {
	if role == RoleWriter {
		return &nb.WriterIDs
	}
	return &nb.ReaderIDs
}

// AddMember grants role to userID. A collaborator holding the other role is
// moved; the owner and existing holders of role are rejected.
func (nb *Notebook) AddMember(userID string, role Role) error {
	if !role.Valid() {
		return invalidArgument("unknown role %q", role)
	}
	if userID == nb.OwnerID {
		return fmt.Errorf("%w: %s owns notebook %s", ErrAlreadyMember, userID, nb.ID)
	}
	set := nb.members(role)
	if slices.Contains(*set, userID) {
		return fmt.Errorf("%w: %s is already a %s of %s", ErrAlreadyMember, userID, role, nb.ID)
	}
	other := nb.members(otherRole(role))
	*other = slices.DeleteFunc(*other, func(id string) bool { return id == userID })
	*set = append(*set, userID)
	return nil
}

func (nb *Notebook) RemoveMember(userID string, role Role) error {
	if !role.Valid() {
		return invalidArgument("unknown role %q", role)
	}
	set := nb.members(role)
	i := slices.Index(*set, userID)
	if i < 0 {
		return notFound("%s is not a %s of %s", userID, role, nb.ID)
	}
	*set = slices.Delete(*set, i, i+1)
	return nil
}

func (nb *Notebook) HasRole(userID string, role Role) bool {
	return slices.Contains(*nb.members(role), userID)
}

func otherRole(r Role) Role {
	if r == RoleWriter {
		return RoleReader
	}
	return RoleWriter
}
