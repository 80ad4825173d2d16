package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pokebid/pokebid/internal/auth"
	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/models"
)

// CreateUserHandler registers a new user account.
func CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" {
		http.Error(w, "email, password, and username are required", http.StatusBadRequest)
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}

	if err := database.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}

	user.Password = ""
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler authenticates a user by email and password. On success the
// JWT is returned in the body and set as an HttpOnly cookie.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := database.AuthenticateUser(context.Background(), req.Email, req.Password)
	if err != nil {
		log.Printf("failed to authenticate user: %v", err)
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TokenExpireSec,
	})

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// MeHandler returns the authenticated user's profile.
func MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticateRequest(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	u, err := database.GetUserByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	u.Password = ""
	writeJSON(w, http.StatusOK, u)
}
