package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/env"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	env.Env["APP_KEY"] = "test-app-key"

	enc, err := Encrypt("s3cret-gateway-password")
	require.NoError(t, err)
	require.NotEmpty(t, enc)
	assert.NotContains(t, enc, "s3cret")

	plain, err := Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-gateway-password", plain)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	env.Env["APP_KEY"] = "test-app-key"

	_, err := Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = Decrypt("QUJD")
	assert.Error(t, err)
}

func TestEncryptRequiresAppKey(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	env.Env["APP_KEY"] = ""

	_, err := Encrypt("anything")
	assert.ErrorIs(t, err, ErrNoAppKey)
}
