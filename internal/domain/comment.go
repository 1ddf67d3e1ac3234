package domain

import "time"

// Comment is the host entity shipped with the service. It carries the shadow
// columns of its two rating fields.
type Comment struct {
	ID        string
	Author    string
	Body      string
	Rating    Rating
	Stars     Rating
	CreatedAt time.Time
	UpdatedAt time.Time
}
