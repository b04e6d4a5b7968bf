package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func testCartConfig() config.CartTokenConfig {
	return config.CartTokenConfig{Secret: "cart-secret", CookieName: "sf_cart", TTL: time.Hour, CookieSecure: true}
}

func TestCartTokenPrefersHeaderOverCookie(t *testing.T) {
	var captured string
	handler := CartToken(testCartConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CartTokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(CartTokenHeader, "from-header")
	req.AddCookie(&http.Cookie{Name: "sf_cart", Value: "from-cookie"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "from-header" {
		t.Fatalf("expected header token got %q", captured)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "sf_cart", Value: "from-cookie"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "from-cookie" {
		t.Fatalf("expected cookie token got %q", captured)
	}
}

func TestOwnerFromContextPrefersUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithCartToken(req.Context(), "anon")
	if owner := OwnerFromContext(ctx); owner.Authenticated() || owner.Token != "anon" {
		t.Fatalf("expected token owner got %+v", owner)
	}
	ctx = WithUserID(ctx, "3f1c4d9a-8a3e-4c51-9b57-2f1f0f6e9a10")
	if owner := OwnerFromContext(ctx); !owner.Authenticated() || owner.Token != "" {
		t.Fatalf("expected user owner got %+v", owner)
	}
}

func TestIssueCartTokenSetsHeaderAndCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	IssueCartToken(rec, testCartConfig(), "signed")

	if rec.Header().Get(CartTokenHeader) != "signed" {
		t.Fatalf("expected header to carry token")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != "sf_cart" || cookie.Value != "signed" || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("unexpected cookie %+v", cookie)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("expected max age 3600 got %d", cookie.MaxAge)
	}

	empty := httptest.NewRecorder()
	IssueCartToken(empty, testCartConfig(), "")
	if empty.Header().Get(CartTokenHeader) != "" || len(empty.Result().Cookies()) != 0 {
		t.Fatalf("expected nothing issued for an authenticated owner")
	}
}
