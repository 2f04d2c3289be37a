package domain

import "fmt"

// AccessGrade is the closed, ordered set of access outcomes a passing
// governance evaluation can produce. It replaces free-form role strings so
// transport and token layers cannot invent grades.
type AccessGrade string

const (
	GradeFull       AccessGrade = "full"
	GradeRestricted AccessGrade = "restricted"
	GradeManual     AccessGrade = "manual_review"
)

// gradeOrder defines ordering for comparison; higher grants more.
var gradeOrder = map[AccessGrade]int{
	GradeManual:     0,
	GradeRestricted: 1,
	GradeFull:       2,
}

// ParseAccessGrade validates and returns an AccessGrade.
func ParseAccessGrade(s string) (AccessGrade, error) {
	g := AccessGrade(s)
	if _, ok := gradeOrder[g]; !ok {
		return "", fmt.Errorf("unknown access grade: %s", s)
	}
	return g, nil
}

func (g AccessGrade) String() string { return string(g) }

// AtLeast reports whether g grants at least as much access as other.
// Unknown grades compare below every known grade.
func (g AccessGrade) AtLeast(other AccessGrade) bool {
	thisOrder, thisOK := gradeOrder[g]
	otherOrder, otherOK := gradeOrder[other]
	if !thisOK {
		return false
	}
	if !otherOK {
		return true
	}
	return thisOrder >= otherOrder
}
