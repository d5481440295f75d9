package permissions

import (
	"regexp"
	"strings"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// Key identifies a single grantable capability in resource.action form,
// e.g. "contacts.view". Two keys are equal iff their strings are equal.
type Key string

// NewKey joins a resource and an action. The result is not validated.
func NewKey(resource, action string) Key {
	return Key(resource + "." + action)
}

// ParseKey validates s and returns it as a Key
func ParseKey(s string) (Key, error) {
	if !keyPattern.MatchString(s) {
		return "", apperrors.NewValidation("permission", "invalid permission key %q", s)
	}
	return Key(s), nil
}

// ParseKeys validates every entry and returns them as a Set. The first
// malformed key aborts parsing.
func ParseKeys(field string, values []string) (Set, error) {
	set := make(Set, len(values))
	for _, v := range values {
		k, err := ParseKey(v)
		if err != nil {
			return nil, apperrors.NewValidation(field, "invalid permission key %q", v)
		}
		set[k] = struct{}{}
	}
	return set, nil
}

// Valid reports whether k matches the resource.action format
func (k Key) Valid() bool {
	return keyPattern.MatchString(string(k))
}

// Resource returns the part before the dot
func (k Key) Resource() string {
	resource, _, _ := strings.Cut(string(k), ".")
	return resource
}

// Action returns the part after the dot
func (k Key) Action() string {
	_, action, _ := strings.Cut(string(k), ".")
	return action
}

func (k Key) String() string {
	return string(k)
}
