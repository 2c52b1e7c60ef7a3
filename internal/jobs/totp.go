// File: internal/jobs/totp.go
package jobs

import (
	"fmt"

	"github.com/pquerna/otp/totp"
)

// SecretProvider produces the shared secret bound to an account during the
// TOTP sub-step. The secret itself is opaque to the job procedures.
type SecretProvider interface {
	GenerateSecret(email string) (string, error)
}

// OTPSecretProvider generates RFC 6238 compatible base32 secrets.
type OTPSecretProvider struct {
	Issuer string
}

// GenerateSecret returns a fresh base32 secret enrolled under the provider's
// issuer for the given account.
func (p OTPSecretProvider) GenerateSecret(email string) (string, error) {
	issuer := p.Issuer
	if issuer == "" {
		issuer = "mailforge"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate totp secret for %s: %w", email, err)
	}
	return key.Secret(), nil
}
