// ABOUTME: Per-display-name membership group with disambiguation signaling
// ABOUTME: Tracks which users currently assert one display name in one room

package ambiguity

import (
	"maunium.net/go/mautrix/id"
)

// nameGroup is the set of users currently asserting one display name in one
// room, restricted to joined or invited members. It works on its own copy of
// the cached set; Cache.commit writes the result back.
type nameGroup struct {
	displayName string
	users       map[id.UserID]struct{}
}

// remove deletes userID from the group. If exactly one user remains, that
// user just became the unique holder of the name and is returned; otherwise
// the empty id is returned.
func (g *nameGroup) remove(userID id.UserID) id.UserID {
	delete(g.users, userID)

	if len(g.users) == 1 {
		return g.soleUser()
	}
	return ""
}

// add inserts userID into the group. If the group held exactly one user
// before the insert, that user just lost uniqueness and is returned. The
// signal is computed from the pre-insert size, so re-adding an existing
// member still reports it.
func (g *nameGroup) add(userID id.UserID) id.UserID {
	var ambiguated id.UserID
	if len(g.users) == 1 {
		ambiguated = g.soleUser()
	}

	g.users[userID] = struct{}{}
	return ambiguated
}

func (g *nameGroup) isAmbiguous() bool {
	return len(g.users) > 1
}

func (g *nameGroup) soleUser() id.UserID {
	for user := range g.users {
		return user
	}
	return ""
}
