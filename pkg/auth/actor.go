package auth

import (
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// System is the actor background jobs run as.
func System() Actor {
	return Actor{ID: SystemActorID, Role: enums.ActorRoleSystem}
}

// FromClaims converts verified token claims into an Actor.
func FromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.UserID, Role: claims.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == enums.ActorRoleAdmin }

func (a Actor) IsCustomerOf(order *models.Order) bool {
	return order != nil && a.Role == enums.ActorRoleCustomer && a.ID == order.CustomerID
}

func (a Actor) IsTailorOf(order *models.Order) bool {
	return order != nil && a.Role == enums.ActorRoleTailor && a.ID == order.TailorID
}

// CanView reports whether the actor may read the order's escrow and milestones.
func (a Actor) CanView(order *models.Order) bool {
	return a.IsAdmin() || a.Role == enums.ActorRoleSystem || a.IsCustomerOf(order) || a.IsTailorOf(order)
}
