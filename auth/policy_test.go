package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizeNoRoleRestriction(t *testing.T) {
	id := &Identity{SubjectID: "user-42"}
	assert.NoError(t, Authorize(id, nil))
}

func TestAuthorizeIntersection(t *testing.T) {
	id := &Identity{SubjectID: "user-42", Roles: []string{"customer", "support"}}

	assert.NoError(t, Authorize(id, []string{"support", "admin"}))
	assert.ErrorIs(t, Authorize(id, []string{"admin"}), ErrForbidden)
}

func TestAuthorizeNoRolesGranted(t *testing.T) {
	id := &Identity{SubjectID: "user-42"}
	assert.ErrorIs(t, Authorize(id, []string{"admin"}), ErrForbidden)
}
