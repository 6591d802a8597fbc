package orchestrator

import "regexp"

var (
	personalPattern = regexp.MustCompile(`(?i)\b(my|mine|myself)\b`)

	// keywords match at a word start so plurals count but "example" is not "exam"
	sensitivePattern = regexp.MustCompile(`(?i)\b(grade|result|exam|score|c?gpa|transcript)`)
	statsPattern     = regexp.MustCompile(`(?i)\b(count|how many|number of|ratio|percentage|breakdown|statistics|stats|distribution)`)
)

// isPersonal reports a first-person possessive reference.
func isPersonal(msg string) bool {
	return personalPattern.MatchString(msg)
}

func isSensitive(msg string) bool {
	return sensitivePattern.MatchString(msg)
}

func wantsStats(msg string) bool {
	return statsPattern.MatchString(msg)
}
