package jwttoken

import (
	"custodian/pkg/domain"
)

// JWTServiceAdapter satisfies the auth middleware's PrincipalValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidatePrincipal(tokenString string) (domain.Principal, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return domain.Principal{}, err
	}
	return claims.Principal()
}
