package server

import (
	"context"

	"github.com/sesukyothole/filevault/auth"
)

type ctxKey int

const (
	ctxUser ctxKey = iota
	ctxSession
)

func withUser(ctx context.Context, u *auth.User, s *auth.Session) context.Context {
	ctx = context.WithValue(ctx, ctxUser, u)
	return context.WithValue(ctx, ctxSession, s)
}

func userFrom(ctx context.Context) *auth.User {
	u, _ := ctx.Value(ctxUser).(*auth.User)
	return u
}

func sessionFrom(ctx context.Context) *auth.Session {
	s, _ := ctx.Value(ctxSession).(*auth.Session)
	return s
}
