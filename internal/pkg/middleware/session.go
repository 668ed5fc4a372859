package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/jwt"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/session"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/response"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
)

func writeError(w http.ResponseWriter, err error) {
	ae := errors.Destruct(err)
	response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
		Status:  ae.Status,
		Message: ae.Message,
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

type CustomerSession struct {
	jwt     *jwt.JSONWebToken
	session session.Store
}

func NewCustomerSessionMiddleware(jsonWebToken *jwt.JSONWebToken, s session.Store) *CustomerSession {
	return &CustomerSession{jwt: jsonWebToken, session: s}
}

func (m *CustomerSession) Verify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := m.jwt.Parse(bearer(r))
		if err != nil {
			writeError(w, err)
			return
		}

		acc, err := m.session.Get(ctx, claims.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r.WithContext(session.WithAccount(ctx, acc)))
	}
}

// AdminSession runs after CustomerSession and admits staff only.
type AdminSession struct{}

func NewAdminSessionMiddleware() *AdminSession {
	return &AdminSession{}
}

func (m *AdminSession) Verify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := session.GetAccountFromCtx(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if !acc.IsStaff {
			writeError(w, errors.New(http.StatusForbidden, status.FORBIDDEN, "staff only"))
			return
		}

		next(w, r)
	}
}

// InternalToken guards routes called by schedulers, Cloud Tasks and the
// identity service.
type InternalToken struct {
	token string
}

func NewInternalTokenMiddleware(token string) *InternalToken {
	return &InternalToken{token: token}
}

func (m *InternalToken) Verify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Token")
		if m.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(m.token)) != 1 {
			response.JSON(w, http.StatusUnauthorized, response.RESTEnvelope{
				Status:  status.UNAUTHORIZED,
				Message: "unauthorized",
			})
			return
		}

		next(w, r)
	}
}
