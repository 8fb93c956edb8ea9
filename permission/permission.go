// Package permission defines the predicate the core consumes from its host
// instead of enforcing authorization itself. Authentication/authorization
// is an explicit external collaborator concern; this package only names the
// two permissions the API surface checks before allowing an operation.
package permission

// Permission is one of the two capabilities the Public API Surface gates
// resource operations behind.
type Permission string

const (
	Read  Permission = "dbaas:read"
	Write Permission = "dbaas:write"
)

// Checker is supplied by the embedding host platform. subject is an opaque
// value threaded through from the incoming request context (e.g. a user or
// service identity); the core never inspects it beyond passing it through.
type Checker func(perm Permission, subject interface{}) bool

// AllowAll is a Checker that denies nothing. It exists so the daemon can run
// standalone (e.g. in local development or tests) without a host platform
// wired in; production deployments must supply a real Checker.
func AllowAll(Permission, interface{}) bool {
	return true
}
