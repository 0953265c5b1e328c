package auth

import (
	"net/http"
	"strings"
)

// Headers carrying the verified identity towards the upstream services.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUsername = "X-User-Username"
	HeaderEmail    = "X-User-Email"
	HeaderRoles    = "X-User-Roles"
)

var identityHeaders = []string{HeaderUserID, HeaderUsername, HeaderEmail, HeaderRoles}

// StripIdentityHeaders removes any client-supplied copies of the
// identity headers. Must be applied to every inbound request before
// propagation, the upstreams trust these headers.
func StripIdentityHeaders(h http.Header) {
	for _, name := range identityHeaders {
		h.Del(name)
	}
}

// SetIdentityHeaders injects the verified identity into the upstream
// request headers.
func SetIdentityHeaders(h http.Header, id *Identity) {
	h.Set(HeaderUserID, id.SubjectID)
	h.Set(HeaderUsername, id.Username)
	h.Set(HeaderEmail, id.Email)
	h.Set(HeaderRoles, strings.Join(id.Roles, ","))
}

// IdentityFromHeaders reconstructs the propagated claim subset, as the
// upstream services read it.
func IdentityFromHeaders(h http.Header) *Identity {
	id := &Identity{
		SubjectID: h.Get(HeaderUserID),
		Username:  h.Get(HeaderUsername),
		Email:     h.Get(HeaderEmail),
	}

	if roles := h.Get(HeaderRoles); roles != "" {
		id.Roles = strings.Split(roles, ",")
	}

	return id
}
