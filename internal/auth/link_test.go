package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSigner_RoundTrip(t *testing.T) {
	signer, err := NewLinkSigner([]byte("secret"), time.Hour)
	require.NoError(t, err)

	token, expires, err := signer.Sign("01ARZ3NDEKTSV4RRFFQ69G5FAV.png")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)
	assert.NoError(t, signer.Verify(token, "01ARZ3NDEKTSV4RRFFQ69G5FAV.png"))
}

func TestLinkSigner_RejectsOtherFile(t *testing.T) {
	signer, _ := NewLinkSigner([]byte("secret"), time.Hour)
	token, _, err := signer.Sign("a.png")
	require.NoError(t, err)
	assert.ErrorIs(t, signer.Verify(token, "b.png"), ErrInvalidLink)
}

func TestLinkSigner_RejectsOtherSecret(t *testing.T) {
	a, _ := NewLinkSigner([]byte("secret-a"), time.Hour)
	b, _ := NewLinkSigner([]byte("secret-b"), time.Hour)
	token, _, err := a.Sign("a.png")
	require.NoError(t, err)
	assert.ErrorIs(t, b.Verify(token, "a.png"), ErrInvalidLink)
	assert.ErrorIs(t, b.Verify("garbage", "a.png"), ErrInvalidLink)
}

func TestLinkSigner_Expired(t *testing.T) {
	signer, _ := NewLinkSigner([]byte("secret"), time.Minute)
	issued := time.Now()
	signer.now = func() time.Time { return issued }
	token, _, err := signer.Sign("a.png")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	assert.ErrorIs(t, signer.Verify(token, "a.png"), ErrExpiredLink)
}

func TestNewLinkSigner_Validation(t *testing.T) {
	_, err := NewLinkSigner(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewLinkSigner([]byte("s"), 0)
	assert.Error(t, err)
}
