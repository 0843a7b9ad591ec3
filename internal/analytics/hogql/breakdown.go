package hogql

// Breakdown sentinel values shared by query composition and result parsing.
const (
	NullBreakdown  = "$$_posthog_breakdown_null_$$"
	OtherBreakdown = "$$_posthog_breakdown_other_$$"
)

// IsSentinelBreakdown reports whether value denotes an unknown or folded
// entity rather than a real one.
func IsSentinelBreakdown(value string) bool {
	switch value {
	case NullBreakdown, OtherBreakdown, "", "null":
		return true
	default:
		return false
	}
}
