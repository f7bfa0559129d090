package roster

import "github.com/spec-kit/client-roster/internal/domain"

// OwnerKind describes how a client's owner resolved.
type OwnerKind int

const (
	OwnerUnowned OwnerKind = iota
	OwnerResolved
	// OwnerInvisible means the owner exists but the actor cannot see them.
	OwnerInvisible
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerResolved:
		return "resolved"
	case OwnerInvisible:
		return "invisible"
	default:
		return "unowned"
	}
}

// ResolvedOwner is the display-ready owner of a client.
type ResolvedOwner struct {
	Kind    OwnerKind
	User    *domain.User
	OwnerID string
}

// ResolveOwner matches rec.OwnerID against the users visible to actor. An
// owner that cannot be found is reported as invisible, never as unowned.
// knownUsers may be empty while it is still loading.
func ResolveOwner(rec domain.ClientRecord, knownUsers []domain.User, actor *domain.User) ResolvedOwner {
	if rec.OwnerID == nil {
		return ResolvedOwner{Kind: OwnerUnowned}
	}
	ownerID := *rec.OwnerID
	for i := range knownUsers {
		if knownUsers[i].ID == ownerID {
			u := knownUsers[i]
			return ResolvedOwner{Kind: OwnerResolved, User: &u, OwnerID: ownerID}
		}
	}
	if actor != nil && actor.ID == ownerID {
		u := *actor
		return ResolvedOwner{Kind: OwnerResolved, User: &u, OwnerID: ownerID}
	}
	return ResolvedOwner{Kind: OwnerInvisible, OwnerID: ownerID}
}
