package auth

import "errors"

// ErrForbidden is returned when a valid token does not carry any of the
// roles a route requires.
var ErrForbidden = errors.New("none of the required roles granted")

// Authorize checks the role policy of a route against the identity. An
// empty allowed set grants access to any authenticated identity.
func Authorize(id *Identity, allowedRoles []string) error {
	if len(allowedRoles) == 0 {
		return nil
	}

	for _, allowed := range allowedRoles {
		for _, have := range id.Roles {
			if have == allowed {
				return nil
			}
		}
	}

	return ErrForbidden
}
