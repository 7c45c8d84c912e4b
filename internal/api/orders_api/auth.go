package orders_api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type actorKey struct{}

// Authenticator accepts static bearer tokens, each bound to the actor name recorded on events.
type Authenticator struct {
	tokens map[string]string
}

func NewAuthenticator(tokens map[string]string) *Authenticator {
	if len(tokens) == 0 {
		return nil
	}
	cp := make(map[string]string, len(tokens))
	for t, actor := range tokens {
		cp[t] = actor
	}
	return &Authenticator{tokens: cp}
}

func (a *Authenticator) actor(token string) (string, bool) {
	for t, actor := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return actor, true
		}
	}
	return "", false
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Message: "bearer token required"})
			return
		}
		actor, ok := a.actor(strings.TrimSpace(token))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Message: "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// ActorFrom returns the authenticated actor, or nil when the request was not authenticated.
func ActorFrom(ctx context.Context) *string {
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || actor == "" {
		return nil
	}
	return &actor
}
