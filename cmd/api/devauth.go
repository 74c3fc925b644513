package main

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/v4/auth"
)

// devVerifier accepts "uid" or "uid:role" as a bearer token. It is only
// installed for STORE=memory runs without a Firebase project.
type devVerifier struct{}

func (devVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid, role, _ := strings.Cut(idToken, ":")
	if uid == "" {
		return nil, errors.New("empty development token")
	}
	claims := map[string]any{}
	if role != "" {
		claims["role"] = role
	}
	return &auth.Token{UID: uid, Claims: claims}, nil
}
