package handlers

import (
	"net/http"

	"studyhub/internal/handlers/render"
	"studyhub/internal/models"
)

type UserHandler struct{}

func NewUser() *UserHandler {
	return &UserHandler{}
}

// Handler mounts the user routes, all of them require authentication
func (h *UserHandler) Handler(withAuth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /me", withAuth(http.HandlerFunc(h.me)))

	return mux
}

// me returns the snapshot of the authenticated user the client keeps in
// its session
func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	type MeResponse struct {
		User models.User `json:"user"`
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, MeResponse{User: user})
}
