package auth

// ScopeSyncWrite allows a caller to push and pull sync batches.
const ScopeSyncWrite = "sync:write"

// CanSync reports whether claims permit syncing. Tokens without any scopes are accepted,
// since first-party access tokens carry only the subject.
func CanSync(claims *Claims) bool {
	if claims == nil {
		return false
	}
	return len(claims.Scopes) == 0 || claims.HasScope(ScopeSyncWrite)
}
