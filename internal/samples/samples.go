// Package samples ships example programs for trying a migration without
// preparing an input file.
package samples

import (
	_ "embed"
	"sort"
	"strings"
)

//go:embed loan_check.cbl
var loanCheck string

// LoanCheck is a small COBOL loan eligibility program.
func LoanCheck() string {
	return strings.TrimRight(loanCheck, "\n")
}

var byName = map[string]func() string{
	"loan-check": LoanCheck,
}

// Get returns the named sample.
func Get(name string) (string, bool) {
	f, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return f(), true
}

func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
