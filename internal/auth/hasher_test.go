package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/account-service/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	hasher := auth.NewBcryptHasher()

	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)
	require.NotEqual(t, "secret1", hash, "password should be hashed, not raw")

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.BcryptCost, cost)

	assert.True(t, hasher.Verify("secret1", hash))
	assert.False(t, hasher.Verify("secret2", hash))
	assert.False(t, hasher.Verify("", hash))
}

func TestBcryptHasher_HashIsSalted(t *testing.T) {
	hasher := auth.NewBcryptHasher()

	first, err := hasher.Hash("same-password")
	require.NoError(t, err)
	second, err := hasher.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, hasher.Verify("same-password", first))
	assert.True(t, hasher.Verify("same-password", second))
}

func TestBcryptHasher_EmptyPassword(t *testing.T) {
	_, err := auth.NewBcryptHasher().Hash("")
	require.ErrorIs(t, err, auth.ErrEmptyPassword)
}

func TestBcryptHasher_VerifyMalformedHash(t *testing.T) {
	assert.False(t, auth.NewBcryptHasher().Verify("secret1", "not-a-bcrypt-hash"))
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	hasher := auth.NewBcryptHasher()
	prefix := strings.Repeat("p", auth.MaxPasswordBytes)

	tests := []struct {
		name     string
		password string
	}{
		{name: "at the limit", password: prefix},
		{name: "one byte over", password: prefix + "x"},
		{name: "well over", password: prefix + strings.Repeat("x", 80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)
			require.NoError(t, err)
			assert.True(t, hasher.Verify(tt.password, hash))
			assert.False(t, hasher.Verify(prefix[:auth.MaxPasswordBytes-1], hash))
		})
	}
}

func TestBcryptHasher_IgnoresBytesPastLimit(t *testing.T) {
	hasher := auth.NewBcryptHasher()
	prefix := strings.Repeat("p", auth.MaxPasswordBytes)

	hash, err := hasher.Hash(prefix + "first-tail")
	require.NoError(t, err)
	assert.True(t, hasher.Verify(prefix+"second-tail", hash))
	assert.True(t, hasher.Verify(prefix, hash))
}
