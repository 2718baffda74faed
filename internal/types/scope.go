package types

import (
	"github.com/google/uuid"
)

// ScopeLevel is the ownership tier of a template. STORE is the most
// specific, BRAND the chain-wide default.
type ScopeLevel string

const (
	ScopeLevelStore   ScopeLevel = "STORE"
	ScopeLevelAccount ScopeLevel = "ACCOUNT"
	ScopeLevelBrand   ScopeLevel = "BRAND"
)

func (l ScopeLevel) Valid() bool {
	switch l {
	case ScopeLevelStore, ScopeLevelAccount, ScopeLevelBrand:
		return true
	}
	return false
}

// Scope identifies the single owner of a template: exactly one of a store,
// a franchise account, or a brand.
type Scope struct {
	Level ScopeLevel
	ID    uuid.UUID
}

func StoreScope(id uuid.UUID) Scope   { return Scope{Level: ScopeLevelStore, ID: id} }
func AccountScope(id uuid.UUID) Scope { return Scope{Level: ScopeLevelAccount, ID: id} }
func BrandScope(id uuid.UUID) Scope   { return Scope{Level: ScopeLevelBrand, ID: id} }

// StoreContext is the ancestry chain of one store, as resolved by the
// store/tenant directory.
type StoreContext struct {
	StoreID   uuid.UUID
	AccountID uuid.UUID
	BrandID   uuid.UUID
	Subtype   string
}

// IsAncestorOf reports whether the scope owner sits on the store's ancestry
// chain (ancestor-or-self).
func (s Scope) IsAncestorOf(store StoreContext) bool {
	switch s.Level {
	case ScopeLevelStore:
		return s.ID == store.StoreID
	case ScopeLevelAccount:
		return s.ID == store.AccountID
	case ScopeLevelBrand:
		return s.ID == store.BrandID
	}
	return false
}
