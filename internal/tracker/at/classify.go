package at

import (
	"strings"
)

// Classify identifies the nature of a modem output line. The idle and
// guard watches use it to separate URC traffic from noise before looking
// at the specific report.
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	switch line {
	case OK, ERROR:
		return TypeFinal
	case UrcRing:
		return TypeURC
	}

	if strings.HasPrefix(line, UrcSmsDeliver) || strings.HasPrefix(line, UrcRegStatus) {
		return TypeURC
	}

	return TypeData
}

// Contains reports whether needle occurs in line. AT response fragments are
// matched case sensitive, exactly as the modem emits them.
func Contains(line, needle string) bool {
	return strings.Contains(line, needle)
}

// ContainsFold upper-folds the haystack before matching so SMS command
// keywords are recognized regardless of how the sender typed them.
func ContainsFold(body, keyword string) bool {
	return strings.Contains(strings.ToUpper(body), keyword)
}
