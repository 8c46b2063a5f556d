package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDemoPasswordHash(t *testing.T) {
	hash, err := demoPasswordHash()
	require.NoError(t, err)

	// Seeded accounts must actually be able to log in with demoPassword
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(demoPassword)))
}
