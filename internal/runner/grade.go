package runner

import (
	"errors"
	"strings"
)

var errNoJSON = errors.New("JSON.stringify unavailable")

// Grade is a Result checked against an expected output.
type Grade struct {
	Result
	Expected string `json:"expected"`
	Correct  bool   `json:"correct"`
}

func newGrade(res *Result, expected string) *Grade {
	return &Grade{
		Result:   *res,
		Expected: expected,
		Correct:  !res.Error && strings.TrimSpace(res.Output) == strings.TrimSpace(expected),
	}
}
