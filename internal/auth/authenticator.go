package auth

import (
	"context"

	"github.com/mmynk/chamaledger/internal/models"
)

// Authenticator verifies who a caller is. Password login is the only
// implementation today; the interface keeps the services independent of it.
type Authenticator interface {
	// Register creates a user. Username and email must both be unused.
	Register(ctx context.Context, username, email, displayName, credential string) (*models.User, error)

	// Authenticate checks a credential for the user identified by login,
	// which may be either an email or a username.
	Authenticate(ctx context.Context, login, credential string) (*models.User, error)

	// ValidateCredential checks the credential against the policy before
	// anything is stored.
	ValidateCredential(credential string) error
}
