package server

import (
	"context"

	"github.com/inkwell-hq/inkwell/internal/collab"
	"github.com/inkwell-hq/inkwell/internal/users"
)

// IdentityVerifier resolves a websocket handshake credential to the
// identity the session will carry: the token yields a user id, the
// account directory yields the display name. A token whose subject no
// longer exists is rejected the same way an invalid token is.
type IdentityVerifier struct {
	Tokens TokenManager
	Users  *users.Service
}

// VerifyCredential implements collab.IdentityVerifier.
func (v IdentityVerifier) VerifyCredential(ctx context.Context, credential string) (collab.Identity, error) {
	userID, err := v.Tokens.ValidateToken(credential)
	if err != nil {
		return collab.Identity{}, err
	}

	account, err := v.Users.Get(ctx, userID)
	if err != nil {
		return collab.Identity{}, err
	}

	return collab.Identity{UserID: account.ID, DisplayName: account.Name}, nil
}
