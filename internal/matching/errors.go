package matching

import "errors"

var (
	// ErrNoRoles is returned for projects without open role requests.
	ErrNoRoles = errors.New("project declares no role requests")
	// ErrNoCandidates means vector search produced no eligible candidates.
	ErrNoCandidates = errors.New("no eligible candidates")
)
