package enums

import "fmt"

// ExamType partitions delivery tasks by examination cycle. Informational only.
type ExamType string

const (
	ExamTypeRegular       ExamType = "REGULAR"
	ExamTypeCompartmental ExamType = "COMPARTMENTAL"
)

var validExamTypes = []ExamType{
	ExamTypeRegular,
	ExamTypeCompartmental,
}

// String implements fmt.Stringer.
func (e ExamType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ExamType.
func (e ExamType) IsValid() bool {
	for _, candidate := range validExamTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseExamType converts raw input into an ExamType.
func ParseExamType(value string) (ExamType, error) {
	for _, candidate := range validExamTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid exam type %q", value)
}
