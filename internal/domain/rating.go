package domain

import (
	"strings"
	"time"
)

// Target is a polymorphic reference to any rated host entity.
type Target struct {
	EntityType string
	ObjectID   string
}

// Vote represents one actor's score on one (target, field key) tuple.
type Vote struct {
	ID        int64
	Target    Target
	FieldKey  string
	Score     float64
	UserID    *string
	IPAddress string
	Cookie    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PartialIPAddress masks the last segment of the voter's address.
func (v Vote) PartialIPAddress() string {
	i := strings.LastIndexAny(v.IPAddress, ".:")
	if i < 0 {
		return "xxx"
	}
	return v.IPAddress[:i+1] + "xxx"
}

// UserDisplay names the voter for listings: the user id followed by the
// address, or the address alone for anonymous votes.
func (v Vote) UserDisplay() string {
	if v.UserID != nil {
		return *v.UserID + " (" + v.IPAddress + ")"
	}
	return v.IPAddress
}

// Score is the denormalized per-(target, field key) aggregate.
// Rating is only maintained for float-rating fields.
type Score struct {
	Target   Target
	FieldKey string
	Votes    int64
	Score    float64
	Rating   *float64
}

// Average returns score/votes, or zero when nothing was voted yet.
func (s Score) Average() float64 {
	if s.Votes == 0 {
		return 0
	}
	return s.Score / float64(s.Votes)
}

// Rating is the {score, votes} pair kept in a host entity's shadow columns.
type Rating struct {
	Score  float64
	Votes  int64
	Rating *float64
}
