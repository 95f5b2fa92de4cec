package identity_test

import (
	"path/filepath"
	"testing"

	"github.com/canonical/landscape-client-sub002/identity"
	"github.com/canonical/landscape-client-sub002/persist"
	"github.com/stretchr/testify/assert"
)

func TestFreshInstallIsUnregistered(t *testing.T) {
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)
	id := identity.New(tree.RootAt("identity"), identity.Config{
		ComputerTitle: "rex",
		AccountName:   "acct",
	})
	assert.False(t, id.Registered())
	assert.Empty(t, id.SecureID())
}

func TestSetIDsThenClear(t *testing.T) {
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)
	id := identity.New(tree.RootAt("identity"), identity.Config{})

	id.SetIDs("secure-1", "insecure-1")
	assert.True(t, id.Registered())
	assert.Equal(t, "secure-1", id.SecureID())
	assert.Equal(t, "insecure-1", id.InsecureID())

	id.Clear()
	assert.False(t, id.Registered())
	assert.Empty(t, id.SecureID())
	assert.Empty(t, id.InsecureID())
}

func TestConfiguredFieldsAreExposed(t *testing.T) {
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)
	id := identity.New(tree.RootAt("identity"), identity.Config{
		ComputerTitle:        "rex",
		AccountName:          "acct",
		RegistrationPassword: "secret",
	})
	assert.Equal(t, "rex", id.ComputerTitle())
	assert.Equal(t, "acct", id.AccountName())
	assert.Equal(t, "secret", id.RegistrationPassword())
}
