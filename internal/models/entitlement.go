package models

import "time"

// EntitlementScope — итоговая область доступа пользователя.
type EntitlementScope string

const (
	EntitlementAll      EntitlementScope = "all"
	EntitlementCategory EntitlementScope = "category"
	EntitlementNone     EntitlementScope = "none"
)

// Entitlement — право доступа к платному контенту.
type Entitlement struct {
	Scope      EntitlementScope `json:"scope"`
	CategoryID string           `json:"category_id,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
}

// NoEntitlement описывает пользователя без активной подписки.
var NoEntitlement = Entitlement{Scope: EntitlementNone}

// Allows сообщает, открыт ли контент категории categoryID.
func (e Entitlement) Allows(categoryID string) bool {
	switch e.Scope {
	case EntitlementAll:
		return true
	case EntitlementCategory:
		return categoryID != "" && e.CategoryID == categoryID
	}
	return false
}
