package ratings

import "fmt"

// ActorKind discriminates the two voter identities.
type ActorKind int

const (
	ActorAnonymous ActorKind = iota
	ActorAuthenticated
)

// Actor is the voter: Authenticated(userID) or Anonymous. The IP address is
// recorded for both kinds since it feeds the per-IP cap.
type Actor struct {
	kind   ActorKind
	userID string
	ip     string
}

// Authenticated returns an actor identified by a user id.
func Authenticated(userID, ip string) Actor {
	return Actor{kind: ActorAuthenticated, userID: userID, ip: ip}
}

// Anonymous returns an actor identified by its IP address and, when the field
// tracks cookies, its vote cookie.
func Anonymous(ip string) Actor {
	return Actor{kind: ActorAnonymous, ip: ip}
}

func (a Actor) Kind() ActorKind { return a.kind }
func (a Actor) IsAnonymous() bool { return a.kind == ActorAnonymous }
func (a Actor) UserID() string { return a.userID }
func (a Actor) IP() string { return a.ip }

func (a Actor) String() string {
	if a.kind == ActorAuthenticated {
		return fmt.Sprintf("user %s (%s)", a.userID, a.ip)
	}
	return fmt.Sprintf("anonymous (%s)", a.ip)
}

// Ballot is the per-request context of a vote: who votes and which cookies
// they carried.
type Ballot struct {
	Actor   Actor
	Cookies map[string]string
	// SkipHostUpdate leaves the host entity's shadow columns untouched.
	SkipHostUpdate bool
}
