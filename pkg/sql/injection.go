package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a query argument that looks like SQL injection.
type InjectionCheckResult struct {
	Position    int    // 1-based placeholder position ($1, $2, ...)
	Fingerprint string // libinjection fingerprint of the detected pattern
	Value       string
}

func (r *InjectionCheckResult) Error() string {
	return fmt.Sprintf("argument $%d rejected: matches SQL injection pattern %q", r.Position, r.Fingerprint)
}

// CheckArgForInjection runs libinjection over a string argument.
// Non-string values cannot carry an injection payload and return nil.
func CheckArgForInjection(position int, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{Position: position, Fingerprint: string(fingerprint), Value: s}
	}
	return nil
}

// CheckArgs returns the first positional argument that fails the check, or nil.
func CheckArgs(args []any) *InjectionCheckResult {
	for i, a := range args {
		if r := CheckArgForInjection(i+1, a); r != nil {
			return r
		}
	}
	return nil
}
