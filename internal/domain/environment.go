package domain

import "time"

// Environment is a named deployment target such as production or staging.
type Environment struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// EnvironmentProject links a project to an environment. Hidden associations
// are kept but left out of the default listing.
type EnvironmentProject struct {
	ID              string
	ProjectID       string
	EnvironmentID   string
	EnvironmentName string
	IsHidden        bool
	CreatedAt       time.Time
}
