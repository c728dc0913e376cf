package auth

// Scopes recognised by the routine service.
const (
	ScopeRoutinesRead  = "routines:read"
	ScopeRoutinesWrite = "routines:write"
)
