package jwt

import (
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	gojwt "github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	SessionID string `json:"sid"`
	gojwt.RegisteredClaims
}

// JSONWebToken only verifies; tokens are issued by the identity service.
type JSONWebToken struct {
	publicKey *rsa.PublicKey
}

func NewJSONWebToken(publicKeyPEM []byte) *JSONWebToken {
	pk, err := gojwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		pk = nil
	}

	return &JSONWebToken{publicKey: pk}
}

func (j *JSONWebToken) Parse(token string) (Claims, error) {
	if j.publicKey == nil {
		return Claims{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "token verification key is not configured")
	}

	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.publicKey, nil
	}, gojwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "invalid token")
	}

	return claims, nil
}
