package credential

import (
	"time"

	"github.com/google/uuid"
)

// ScopeType identifies the level a credential is attached to. Resolution
// consults scopes from most to least specific: processor, campaign, tenant,
// system.
type ScopeType string

// Predefined credential scopes.
const (
	ScopeSystem    ScopeType = "system"
	ScopeTenant    ScopeType = "tenant"
	ScopeCampaign  ScopeType = "campaign"
	ScopeProcessor ScopeType = "processor"
)

// ResolutionOrder lists the scopes in resolution order, most specific first.
var ResolutionOrder = []ScopeType{ScopeProcessor, ScopeCampaign, ScopeTenant, ScopeSystem}

// Credential is an encrypted secret attached to a scope. (scope_type,
// scope_id, key) is unique. Values are decrypted only in memory and never
// appear in logs or error messages.
type Credential struct {
	ID        string
	ScopeType ScopeType
	// ScopeID is nil for system scope.
	ScopeID        *string
	Key            string
	EncryptedValue []byte
	Provider       string
	ExpiresAt      *time.Time
	LastUsedAt     *time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// New creates an active credential with an already-encrypted value.
func New(scopeType ScopeType, scopeID *string, key string, encryptedValue []byte, provider string, expiresAt *time.Time) *Credential {
	return &Credential{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ScopeType:      scopeType,
		ScopeID:        scopeID,
		Key:            key,
		EncryptedValue: encryptedValue,
		Provider:       provider,
		ExpiresAt:      expiresAt,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

// Usable reports whether the credential is active and not expired at now.
func (c *Credential) Usable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// Revoke deactivates the credential.
func (c *Credential) Revoke() {
	c.IsActive = false
	now := time.Now().UTC()
	c.UpdatedAt = &now
}
