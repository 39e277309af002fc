package http

import (
	"net/http"
	"strings"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/log"

	"github.com/go-chi/chi/v5"
)

type createUserRequest struct {
	Email      string `json:"email"`
	AccountRef string `json:"account_ref"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	AccountRef string    `json:"account_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	AccountRef  string `json:"account_ref"`
	Amount      string `json:"amount"`
	PostedOn    string `json:"posted_on"`
	Description string `json:"description"`
}

func toUserResponse(u core.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		AccountRef: u.AccountRef,
		CreatedAt:  u.CreatedAt,
	}
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u := core.User{
		Email:      strings.TrimSpace(req.Email),
		AccountRef: strings.TrimSpace(req.AccountRef),
	}
	if err := u.Validate(); err != nil {
		writeError(w, r, invalidInput(err))
		return
	}

	created, err := s.deps.Store.CreateUser(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "user created", log.FieldUserID, created.ID)
	w.Header().Set("Location", "/users/"+created.ID)
	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Store.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.deps.Store.DeleteUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "user deleted", log.FieldUserID, userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	// Listing for an unknown user is empty in the store, so check first
	if _, err := s.deps.Store.GetUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := s.deps.Store.ListTransactions(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		if rng != nil && !rng.Contains(tx.PostedOn) {
			continue
		}
		out = append(out, transactionResponse{
			ID:          tx.ID,
			AccountRef:  tx.AccountRef,
			Amount:      tx.Amount.StringFixed(2),
			PostedOn:    core.FormatDate(tx.PostedOn),
			Description: tx.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out, "count": len(out)})
}
