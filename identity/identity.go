// Package identity manages the broker's registration identity (spec §3,
// component F): two server-issued opaque strings (secure_id, insecure_id)
// plus the three configured strings that seed registration
// (computer_title, account_name, registration_password). Backed by a
// Persist view so it survives restarts alongside the message store.
package identity

import "github.com/canonical/landscape-client-sub002/persist"

// Identity is the broker's view of its own registration state.
type Identity struct {
	tree persist.Store

	computerTitle        string
	accountName          string
	registrationPassword string
}

// Config seeds the caller-configured, non-persisted half of an Identity.
type Config struct {
	ComputerTitle        string
	AccountName          string
	RegistrationPassword string
}

// New returns an Identity backed by tree (already root_at'd to this
// component's namespace by the caller).
func New(tree persist.Store, cfg Config) *Identity {
	return &Identity{
		tree:                 tree,
		computerTitle:        cfg.ComputerTitle,
		accountName:          cfg.AccountName,
		registrationPassword: cfg.RegistrationPassword,
	}
}

// SecureID is the server-assigned id that proves registration. Empty
// before first successful registration.
func (id *Identity) SecureID() string {
	s, _ := id.tree.Get("secure_id").(string)
	return s
}

// InsecureID is the server-assigned companion id issued alongside SecureID.
func (id *Identity) InsecureID() string {
	s, _ := id.tree.Get("insecure_id").(string)
	return s
}

// SetIDs stores the server-assigned ids, handling a `set-id` message.
func (id *Identity) SetIDs(secureID, insecureID string) {
	id.tree.Set("secure_id", secureID)
	id.tree.Set("insecure_id", insecureID)
}

// Clear drops both ids, forcing re-registration on the next exchange.
// Used on an `unknown-id` message or an explicit re-register request.
func (id *Identity) Clear() {
	id.tree.Remove("secure_id")
	id.tree.Remove("insecure_id")
}

// Registered reports whether SecureID is set.
func (id *Identity) Registered() bool {
	return id.SecureID() != ""
}

// ComputerTitle is the caller-configured hostname/title presented at
// registration time.
func (id *Identity) ComputerTitle() string { return id.computerTitle }

// AccountName is the caller-configured Landscape account to register into.
func (id *Identity) AccountName() string { return id.accountName }

// RegistrationPassword authenticates the registration request against the
// configured account; empty when the account requires none.
func (id *Identity) RegistrationPassword() string { return id.registrationPassword }
