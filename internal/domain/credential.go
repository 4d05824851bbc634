package domain

// Claims is the small out-of-band attribute map attached to a credential.
// Role is the only attribute this service manages.
type Claims struct {
	Role Role
}

// CredentialRef describes a login identity held by the identity provider.
// It is opaque beyond these fields; the provider owns its storage.
type CredentialRef struct {
	ID            string
	Email         string
	EmailVerified bool
}
