package main

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

var ErrInvalidCredentials = errors.New("api: invalid credentials")

const (
	bcryptCost = bcrypt.DefaultCost

	// bcrypt ignores anything past 72 bytes and x/crypto refuses longer input.
	maxPasswordBytes = 72
)

type HandleRegisterRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

type HandleLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type HandleAuthResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func (s *APIServer) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	var req HandleRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)

	if err := s.valid.Struct(req, "name, email, and password are required"); err != nil {
		return err
	}

	if len(req.Password) > maxPasswordBytes {
		return invalid("password must be at most %d bytes", maxPasswordBytes)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return err
	}

	user, err := s.db.CreateUser(r.Context(), req.Name, req.Email, string(hash))
	if err != nil {
		return err
	}

	slog.Info("Registered a user", "user_id", user.ID)

	return s.writeAuthResponse(w, http.StatusCreated, "Account created", user)
}

func (s *APIServer) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var req HandleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	req.Email = normalizeEmail(req.Email)

	if err := s.valid.Struct(req, "email and password are required"); err != nil {
		return err
	}

	invalidCredentials := &StatusError{Err: ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "Invalid credentials"}

	user, err := s.db.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, ErrNotFound) {
		verifyPassword(req.Password, unknownUserHash())
		return invalidCredentials
	}
	if err != nil {
		return err
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		return invalidCredentials
	}

	return s.writeAuthResponse(w, http.StatusOK, "Login successful", user)
}

func (s *APIServer) writeAuthResponse(w http.ResponseWriter, status int, msg string, user User) error {
	token, err := s.tokens.NewAccessToken(user)
	if err != nil {
		return err
	}

	return writeJSON(w, status, HandleAuthResponse{
		Message: msg,
		Token:   token.Access,
		User:    userResponse{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// unknownUserHash is compared against on logins for emails with no account,
// so both failure paths spend the same bcrypt work.
var unknownUserHash = sync.OnceValue(func() string {
	hash, err := hashPassword("unknown-user-placeholder")
	if err != nil {
		panic(err)
	}

	return string(hash)
})

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), bcryptCost)
}

func verifyPassword(pwd, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd))
	return err == nil
}
