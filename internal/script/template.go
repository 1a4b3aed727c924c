package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve replaces every ${name} in value with the string form of vars[name].
// Text outside placeholders is kept verbatim. A name with no entry (or a nil
// entry) is an error wrapping ErrUnresolvedVariable. Substitution is a single
// pass: a substituted value that itself contains ${...} is not expanded again.
func Resolve(value string, vars map[string]any) (string, error) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	var missing string
	out := placeholder.ReplaceAllStringFunc(value, func(m string) string {
		if missing != "" {
			return m
		}
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[key]
		if !ok || v == nil {
			missing = key
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedVariable, missing)
	}
	return out, nil
}

// resolveInt resolves value and parses the result as a base-10 integer.
func resolveInt(rc *RunContext, field, value string) (int, error) {
	s, err := rc.Resolve(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidNumber, field, s)
	}
	return n, nil
}
