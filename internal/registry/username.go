package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidUsername flags a username that failed validation. Front ends
// report it inline per item without aborting the rest of the batch.
var ErrInvalidUsername = errors.New("invalid username")

const maxUsernameLen = 30

// Normalize case-folds a raw username and validates it against the allowed
// charset (alphanumeric plus '.' and '_'). A leading '@' is tolerated.
func Normalize(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "@")
	if name == "" || len(name) > maxUsernameLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, raw)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidUsername, raw)
		}
	}
	return name, nil
}
