package user

import (
	"context"

	"github.com/gofrs/uuid"
)

// Repository is the credential store.
//
// Emails passed to it are expected to be normalized already. Create assigns
// the id and timestamps and reports ErrEmailExists when the unique email
// constraint rejects the write; lookups report ErrNotFound.
type Repository interface {
	Create(ctx context.Context, user *User) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// UpdateToken persists user.Token (nil clears it) and refreshes user.UpdatedAt.
	UpdateToken(ctx context.Context, user *User) error
}
