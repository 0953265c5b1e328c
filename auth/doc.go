/*
Package auth implements the authentication filter of the gateway edge:
bearer token validation, the authorization policy for protected routes
and the identity headers propagated to the upstream services.

Tokens are JWTs signed either with a shared secret or with a key from a
JWKS document. A validated token yields an Identity, which the proxy
injects into the upstream request as the X-User-* headers. Tokens can
be revoked by their jti through an external store, consulted through a
short-lived in-process cache.
*/
package auth
