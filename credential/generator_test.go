package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralcp/dbaas/engine"
)

func TestGenerateUsernameFormat(t *testing.T) {
	u, err := GenerateUsername()
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z]+_[a-z]+_\d+$`, u)
}

func TestGeneratePasswordRespectsDefaultConstraints(t *testing.T) {
	pw, err := GeneratePassword(engine.DefaultCharsetConstraints())
	require.NoError(t, err)
	assert.Len(t, pw, 32)
	assert.Regexp(t, `[A-Z]`, pw)
	assert.Regexp(t, `[a-z]`, pw)
	assert.Regexp(t, `[0-9]`, pw)
}

func TestGeneratePasswordExcludesSymbolsWhenDisallowed(t *testing.T) {
	constraints := engine.CharsetConstraints{AllowSymbols: false, MinLength: 20, MaxLength: 24}
	for i := 0; i < 20; i++ {
		pw, err := GeneratePassword(constraints)
		require.NoError(t, err)
		assert.NotRegexp(t, `[!@#$%^&*()\-_=+]`, pw)
	}
}

func TestGeneratePasswordHonorsExcludeChars(t *testing.T) {
	constraints := engine.CharsetConstraints{AllowSymbols: true, MinLength: 20, MaxLength: 24, ExcludeChars: "!@"}
	for i := 0; i < 20; i++ {
		pw, err := GeneratePassword(constraints)
		require.NoError(t, err)
		assert.NotContains(t, pw, "!")
		assert.NotContains(t, pw, "@")
	}
}

func TestGeneratedPasswordsAreNotConstant(t *testing.T) {
	a, err := GeneratePassword(engine.DefaultCharsetConstraints())
	require.NoError(t, err)
	b, err := GeneratePassword(engine.DefaultCharsetConstraints())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
