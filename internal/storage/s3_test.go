package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a := &Archiver{password: "correct horse"}
	plain := []byte("the archived file body")

	enc, err := a.encryptGCM(plain)
	require.NoError(t, err)

	assert.Equal(t, gcmMagic, string(enc[:8]))
	assert.Greater(t, len(enc), len(plain)+8+16+12)

	dec, err := a.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestEncryptIsSalted(t *testing.T) {
	a := &Archiver{password: "pw"}
	e1, err := a.encryptGCM([]byte("same input"))
	require.NoError(t, err)
	e2, err := a.encryptGCM([]byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, e1, e2)
}

func TestDecryptWrongPassword(t *testing.T) {
	enc, err := (&Archiver{password: "right"}).encryptGCM([]byte("secret"))
	require.NoError(t, err)

	_, err = (&Archiver{password: "wrong"}).Decrypt(enc)
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	a := &Archiver{password: "pw"}

	_, err := a.Decrypt([]byte("short"))
	assert.ErrorContains(t, err, "too short")

	bad := make([]byte, 64)
	copy(bad, "NOTMAGIC")
	_, err = a.Decrypt(bad)
	assert.ErrorContains(t, err, "unknown encryption format")
}
