package auth

import "github.com/spec-kit/client-roster/internal/domain"

// CanEdit reports whether actor may edit rec. Every authenticated role may edit
// every client; ownership is claimed by the edit itself.
func CanEdit(rec *domain.ClientRecord, actor *domain.User) bool {
	return rec != nil && actor != nil
}

// CanDelete reports whether actor may delete rec. Same policy as CanEdit.
func CanDelete(rec *domain.ClientRecord, actor *domain.User) bool {
	return rec != nil && actor != nil
}

// CanView reports whether actor may see rec. Employees see their own, unowned
// and last-edited-by-them clients; every other role sees everything.
func CanView(rec *domain.ClientRecord, actor *domain.User) bool {
	if rec == nil || actor == nil {
		return false
	}
	if actor.Role != domain.RoleEmployee {
		return true
	}
	if rec.OwnerID == nil || *rec.OwnerID == actor.ID {
		return true
	}
	return rec.EditedBy != nil && *rec.EditedBy == actor.ID
}

// CanAssign reports whether actor may reassign managers.
func CanAssign(actor *domain.User) bool {
	return actor != nil && domain.HasUserManagement(actor.Role)
}

// CanChangeRoles reports whether actor may promote or demote users.
func CanChangeRoles(actor *domain.User) bool {
	return actor != nil && domain.CanPromote(actor.Role)
}
