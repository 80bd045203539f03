// Package authn resolves bearer API keys to caller account addresses.
// Signature verification proper happens upstream of this service; API
// keys stand in as the pre-authenticated identity collaborator for the
// registry core.
package authn

import "time"

// APIKey links a key id to an account address. The secret is stored as
// a bcrypt hash; the caller presents "keyID.secret".
type APIKey struct {
	ID         string
	Account    string
	SecretHash string
	CreatedAt  time.Time
}
