// Package identity resolves human-entered recipient identifiers (email or
// phone) to verified accounts.
//
// An identifier that matches no verified contact resolves to nil rather than
// an error: unresolved recipients are a normal business outcome and drive the
// PENDING transfer path.
package identity

import (
	"context"
	"strings"

	wallet "github.com/CSWHenry/wallet"
)

// Kind classifies the shape of an identifier.
type Kind string

const (
	// KindEmail is an email-shaped identifier.
	KindEmail Kind = "email"
	// KindPhone is a phone-shaped identifier.
	KindPhone Kind = "phone"
)

// Classify reports the shape of an identifier. The sole discriminator is the
// presence of '@', kept for compatibility with existing stored identifiers.
// Everything that is not email-shaped is treated as a phone number.
func Classify(identifier string) Kind {
	if strings.Contains(identifier, "@") {
		return KindEmail
	}

	return KindPhone
}

// Resolver maps a recipient identifier to its owning account within the
// caller's unit of work. A nil account with a nil error means unresolved.
type Resolver interface {
	Resolve(ctx context.Context, tx wallet.Tx, identifier string) (*wallet.Account, error)
}

// DirectoryResolver resolves identifiers against the store's verified-contact
// directory. It is read-only and never mutates state.
type DirectoryResolver struct{}

// NewDirectoryResolver creates a directory-backed resolver.
func NewDirectoryResolver() *DirectoryResolver {
	return &DirectoryResolver{}
}

// Resolve looks up a verified contact of the identifier's kind and returns
// the owning account, or (nil, nil) when no verified contact matches.
func (r *DirectoryResolver) Resolve(ctx context.Context, tx wallet.Tx, identifier string) (*wallet.Account, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, wallet.NewValidationError("identifier", "identifier is required")
	}

	switch Classify(trimmed) {
	case KindEmail:
		return tx.ResolveVerifiedEmail(ctx, trimmed)
	case KindPhone:
		return tx.ResolveVerifiedPhone(ctx, trimmed)
	default:
		return nil, nil
	}
}
