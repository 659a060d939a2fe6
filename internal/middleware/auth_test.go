package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// token подписывает значение cookie так же, как сервис входа.
func (a *AuthMiddleware) token(actorID int64) string {
	idStr := strconv.FormatInt(actorID, 10)
	return idStr + "." + a.sign(idStr)
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetActorIDFromContext(r.Context())
		if !ok {
			t.Fatalf("actor id not in context")
		}
		if id != 42 {
			t.Fatalf("actor id from context = %d, want 42", id)
		}
	})

	r := httptest.NewRequest(http.MethodPost, "/api/tenders/1/award", nil)
	r.AddCookie(&http.Cookie{Name: actorCookieName, Value: m.token(42)})

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/tenders/1/award", nil)

	m.Middleware(next).ServeHTTP(w, r)

	if res := w.Result(); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	issuer := NewAuthMiddleware("other-secret")
	m := NewAuthMiddleware("test-secret")

	tests := []struct {
		name  string
		value string
	}{
		{name: "other key", value: issuer.token(42)},
		{name: "tampered id", value: "43." + m.token(42)[3:]},
		{name: "no signature", value: "42"},
		{name: "extra part", value: m.token(42) + ".x"},
		{name: "non-positive id", value: m.token(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodPost, "/api/tenders/1/award", nil)
			r.AddCookie(&http.Cookie{Name: actorCookieName, Value: tt.value})
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)

			if res := w.Result(); res.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
			}
		})
	}
}
