package environment

import (
	"fmt"
	"strings"

	"github.com/splax/peep/internal/domain"
	"github.com/splax/peep/internal/repository"
)

// Visibility selects which project environments a listing returns.
type Visibility string

const (
	VisibilityAll     Visibility = "all"
	VisibilityHidden  Visibility = "hidden"
	VisibilityVisible Visibility = "visible"

	// DefaultVisibility applies when the caller does not pick one.
	DefaultVisibility = VisibilityVisible
)

// visibilityOptions lists the accepted values in the order they are reported.
var visibilityOptions = []Visibility{VisibilityAll, VisibilityHidden, VisibilityVisible}

var visibilityFilters = map[Visibility]func(domain.EnvironmentProject) bool{
	VisibilityAll:     func(domain.EnvironmentProject) bool { return true },
	VisibilityHidden:  func(ep domain.EnvironmentProject) bool { return ep.IsHidden },
	VisibilityVisible: func(ep domain.EnvironmentProject) bool { return !ep.IsHidden },
}

// InvalidVisibilityError reports a visibility value outside the accepted set.
type InvalidVisibilityError struct {
	Value string
}

func (e *InvalidVisibilityError) Error() string {
	quoted := make([]string, len(visibilityOptions))
	for i, opt := range visibilityOptions {
		quoted[i] = "'" + string(opt) + "'"
	}
	return fmt.Sprintf("Invalid value for 'visibility': %q, valid values are: %s", e.Value, strings.Join(quoted, ", "))
}

// Unwrap lets callers match the error with errors.Is(err, repository.ErrInvalidArgument).
func (e *InvalidVisibilityError) Unwrap() error {
	return repository.ErrInvalidArgument
}

// ParseVisibility resolves a supplied query value. Callers pass
// DefaultVisibility themselves when the parameter is absent; an empty
// value is rejected like any other unknown one.
func ParseVisibility(raw string) (Visibility, error) {
	v := Visibility(raw)
	if _, ok := visibilityFilters[v]; !ok {
		return "", &InvalidVisibilityError{Value: raw}
	}
	return v, nil
}

// Options returns the accepted visibility values.
func Options() []Visibility {
	return append([]Visibility(nil), visibilityOptions...)
}

// Filter keeps the associations matching v, preserving their order. Only
// values returned by ParseVisibility select anything; any other v yields an
// empty result.
func (v Visibility) Filter(items []domain.EnvironmentProject) []domain.EnvironmentProject {
	out := make([]domain.EnvironmentProject, 0, len(items))
	keep, ok := visibilityFilters[v]
	if !ok {
		return out
	}
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
