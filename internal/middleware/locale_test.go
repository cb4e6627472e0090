package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveLocale(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		accept string
		want   string
	}{
		{name: "x-locale header wins", locale: "id-ID", accept: "ja", want: "id"},
		{name: "accept-language fallback", accept: "ko-KR,ko;q=0.9", want: "ko"},
		{name: "unsupported language matches default", accept: "fr-FR", want: "en"},
		{name: "garbage header uses default", locale: "!!", want: "en"},
		{name: "no headers", want: "en"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.locale != "" {
				req.Header.Set("X-Locale", tc.locale)
			}
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			if got := resolveLocale(req, "en"); got != tc.want {
				t.Fatalf("resolveLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeLocale(t *testing.T) {
	if got := NormalizeLocale("zh-Hans-CN"); got != "zh" {
		t.Fatalf("NormalizeLocale(zh-Hans-CN) = %q", got)
	}
	if got := NormalizeLocale("not a locale"); got != "" {
		t.Fatalf("NormalizeLocale(garbage) = %q", got)
	}
}
