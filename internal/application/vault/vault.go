// Package vault provides hierarchical credential resolution for processors.
// Scopes are consulted from most to least specific: processor, campaign,
// tenant, system. Values are decrypted only in memory; neither log lines nor
// error messages ever carry credential material.
package vault

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/credential"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
	"github.com/ahrav/docflow/pkg/common/timeutil"
)

// Vault resolves credentials against the tenant database bound to the
// calling context.
type Vault struct {
	repo   credential.Repository
	cipher *Cipher
	clock  timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a vault with the given repository and process-wide cipher.
func New(repo credential.Repository, cipher *Cipher, log *logger.Logger, tracer trace.Tracer) *Vault {
	return &Vault{
		repo:   repo,
		cipher: cipher,
		clock:  timeutil.Default(),
		logger: log.With("component", "credential_vault"),
		tracer: tracer,
	}
}

// WithClock overrides the time source, used by expiry tests.
func (v *Vault) WithClock(clock timeutil.Provider) *Vault {
	v.clock = clock
	return v
}

// Resolve returns the decrypted value for key, consulting processor,
// campaign, tenant, then system scope and returning the first active,
// non-expired match. last_used_at is updated fire-and-forget.
func (v *Vault) Resolve(ctx context.Context, key string, processorID, campaignID *string) (string, error) {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return "", err
	}

	ctx, span := v.tracer.Start(ctx, "vault.Resolve", trace.WithAttributes(
		attribute.String("key", key),
		attribute.String("tenant_id", scope.TenantID),
	))
	defer span.End()

	now := v.clock.Now()
	for _, st := range credential.ResolutionOrder {
		var scopeID *string
		switch st {
		case credential.ScopeProcessor:
			if processorID == nil {
				continue
			}
			scopeID = processorID
		case credential.ScopeCampaign:
			if campaignID == nil {
				continue
			}
			scopeID = campaignID
		case credential.ScopeTenant:
			id := scope.TenantID
			scopeID = &id
		case credential.ScopeSystem:
			scopeID = nil
		}

		cred, err := v.repo.FindForScope(ctx, st, scopeID, key)
		if err != nil {
			if errors.Is(err, credential.ErrCredentialNotFound) {
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "error querying credential scope")
			return "", err
		}
		if !cred.Usable(now) {
			continue
		}

		plaintext, err := v.cipher.Decrypt(cred.EncryptedValue)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "error decrypting credential")
			return "", err
		}

		go v.touchLastUsed(cred.ID, scope)

		span.SetAttributes(attribute.String("resolved_scope", string(st)))
		span.SetStatus(codes.Ok, "credential resolved")
		return string(plaintext), nil
	}

	span.SetStatus(codes.Error, "credential not resolvable")
	return "", fault.Credential("credential %q not resolvable for any scope", key)
}

// Store encrypts and persists a credential value under the given scope.
func (v *Vault) Store(ctx context.Context, scopeType credential.ScopeType, scopeID *string, key, value, provider string, expiresAt *time.Time) (*credential.Credential, error) {
	ctx, span := v.tracer.Start(ctx, "vault.Store", trace.WithAttributes(
		attribute.String("key", key),
		attribute.String("scope_type", string(scopeType)),
	))
	defer span.End()

	encrypted, err := v.cipher.Encrypt([]byte(value))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error encrypting credential")
		return nil, err
	}

	cred := credential.New(scopeType, scopeID, key, encrypted, provider, expiresAt)
	if err := v.repo.Create(ctx, cred); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error persisting credential")
		return nil, err
	}
	return cred, nil
}

// touchLastUsed records the resolution hit on a detached context so slow
// writes never block the caller.
func (v *Vault) touchLastUsed(id string, scope *tenantctx.Scope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = tenantctx.With(ctx, scope)
	if err := v.repo.TouchLastUsed(ctx, id); err != nil {
		v.logger.Warn(ctx, "failed to update credential last_used_at", "error", err)
	}
}
