package controllers

import (
	"net/http"

	"github.com/angelmondragon/stitchpay-backend/api/middleware"
	"github.com/angelmondragon/stitchpay-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the authenticated caller so clients can check a token.
func PrivatePing() http.HandlerFunc {
	return actorPing("private")
}

func AdminPing() http.HandlerFunc {
	return actorPing("admin")
}

func actorPing(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": scope, "status": "ok"}
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			payload["user_id"] = actor.ID.String()
			payload["role"] = string(actor.Role)
		}
		responses.WriteSuccess(w, payload)
	}
}
