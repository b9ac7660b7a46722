package http

import (
	"errors"
	"net/http"

	"spendlog/internal/auth"
	"spendlog/internal/log"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := NewRequestBodyParser(w, r).Decode(&body); err != nil {
		ParseFailure(err).Write(w)
		return
	}

	u, err := s.auth.Register(r.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		BadRequestError(err.Error()).Write(w)
		return
	case errors.Is(err, auth.ErrUserExists):
		ErrorResponse(http.StatusConflict, "Username already registered").Write(w)
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Registration failed",
			log.FieldOperation, log.OpRegister, log.FieldError, err)
		InternalServerError("Registration failed").Write(w)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Body(map[string]string{"id": u.ID, "username": u.Username}).
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := NewRequestBodyParser(w, r).Decode(&body); err != nil {
		ParseFailure(err).Write(w)
		return
	}

	token, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		ErrorResponse(http.StatusUnauthorized, "Incorrect username or password").
			Header("WWW-Authenticate", "Bearer").
			Write(w)
		return
	}
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin, log.FieldError, err)
		InternalServerError("Login failed").Write(w)
		return
	}

	NewJSONResponse().
		Body(map[string]string{"access_token": token, "token_type": "bearer"}).
		Write(w)
}
