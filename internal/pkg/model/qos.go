package model

import "fmt"

// QOSLevel is an account's current service tier. Levels are set directly
// from threshold comparisons; there is no enforced adjacency between them.
type QOSLevel string

const (
	QOSNormal   QOSLevel = "normal"
	QOSSlowdown QOSLevel = "slowdown"
	QOSBlocked  QOSLevel = "blocked"
)

// QOSLevels lists the known levels in increasing severity.
var QOSLevels = []QOSLevel{QOSNormal, QOSSlowdown, QOSBlocked}

// Valid reports whether l is one of the known levels.
func (l QOSLevel) Valid() bool {
	switch l {
	case QOSNormal, QOSSlowdown, QOSBlocked:
		return true
	}
	return false
}

// Severity orders levels for impact comparisons: normal < slowdown < blocked.
func (l QOSLevel) Severity() int {
	switch l {
	case QOSSlowdown:
		return 1
	case QOSBlocked:
		return 2
	default:
		return 0
	}
}

// ParseQOSLevel validates a level name from an external boundary.
func ParseQOSLevel(s string) (QOSLevel, error) {
	l := QOSLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown qos level %q", s)
	}
	return l, nil
}
