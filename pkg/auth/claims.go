package auth

import (
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SystemActorID identifies background jobs (auto-approval, re-drive) in the
// ledger and on milestone reviews.
var SystemActorID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("stitchpay:system"))

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
