package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPasswordUsesFreshSalt(t *testing.T) {
	first, err := HashPassword("longenough")
	require.NoError(t, err)
	second, err := HashPassword("longenough")
	require.NoError(t, err)

	require.NotEqual(t, first, second)

	for _, stored := range []string{first, second} {
		salt, key, ok := strings.Cut(stored, ":")
		require.True(t, ok)
		require.Len(t, salt, saltLen*2)
		require.Len(t, key, scryptKeyLen*2)

		matched, err := VerifyPassword("longenough", stored)
		require.NoError(t, err)
		require.True(t, matched)
	}
}

func TestVerifyPasswordRejectsWrongPassword(t *testing.T) {
	stored, err := HashPassword("correct horse")
	require.NoError(t, err)

	matched, err := VerifyPassword("battery staple", stored)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{name: "Empty", stored: ""},
		{name: "NoSeparator", stored: "abcdef"},
		{name: "BadSaltHex", stored: "zz:abcd"},
		{name: "BadKeyHex", stored: "abcd:zz"},
		{name: "MissingKey", stored: "abcd:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, err := VerifyPassword("whatever", tt.stored)
			require.ErrorIs(t, err, ErrMalformedHash)
			require.False(t, matched)
		})
	}
}
