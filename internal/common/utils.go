package common

// Truncate limits s to at most n bytes for logging raw payloads.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
