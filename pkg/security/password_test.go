package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("Very-secure-passw0rd", cfg)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := security.VerifyPassword("Very-secure-passw0rd", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = security.VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	require.False(t, ok)

	second, err := security.HashPassword("Very-secure-passw0rd", cfg)
	require.NoError(t, err)
	require.NotEqual(t, hash, second, "salts should differ per hash")
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := security.HashPassword("", config.PasswordConfig{})
	require.Error(t, err)
}

func TestVerifyPasswordBadHash(t *testing.T) {
	_, err := security.VerifyPassword("irrelevant", "not-a-hash")
	require.ErrorIs(t, err, security.ErrInvalidHash)
}

func TestCheckPasswordPolicy(t *testing.T) {
	require.Empty(t, security.CheckPasswordPolicy("Sh0pping!"))

	rules := func(vs []security.PolicyViolation) []string {
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			out = append(out, v.Rule)
		}
		return out
	}
	require.ElementsMatch(t, []string{"min_length", "uppercase", "digit", "symbol"}, rules(security.CheckPasswordPolicy("abc")))
	require.ElementsMatch(t, []string{"symbol"}, rules(security.CheckPasswordPolicy("Password123")))
}

func TestNeedsRehash(t *testing.T) {
	base := config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, err := security.HashPassword("Sh0pping!", base)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"))

	require.False(t, security.NeedsRehash(hash, base))

	stronger := base
	stronger.ArgonTime = 3
	require.True(t, security.NeedsRehash(hash, stronger))
	require.True(t, security.NeedsRehash("garbage", base))
}

func TestVerifyPasswordRejectsForeignVersion(t *testing.T) {
	hash, err := security.HashPassword("Sh0pping!", config.PasswordConfig{})
	require.NoError(t, err)
	tampered := strings.Replace(hash, "v=19", "v=16", 1)

	_, err = security.VerifyPassword("Sh0pping!", tampered)
	require.ErrorIs(t, err, security.ErrInvalidHash)
}
