package domain

import "time"

// Project groups environments and is owned by a team.
type Project struct {
	ID        string
	TeamID    string
	Slug      string
	Name      string
	CreatedAt time.Time
}
