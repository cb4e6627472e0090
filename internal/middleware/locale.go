package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var supportedLocales = language.NewMatcher([]language.Tag{
	language.English, // first tag is the fallback
	language.Indonesian,
	language.Japanese,
	language.Korean,
	language.SimplifiedChinese,
})

// Locale resolves the request locale from X-Locale or Accept-Language and
// stores the matched BCP 47 tag in the request context.
func Locale(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := resolveLocale(r, defaultLocale)
			ctx := context.WithValue(r.Context(), localeContextKey{}, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveLocale(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag := NormalizeLocale(v); tag != "" {
			return tag
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			tag, _, _ := supportedLocales.Match(tags...)
			base, _ := tag.Base()
			return base.String()
		}
	}
	if fallback != "" {
		return fallback
	}
	return "en"
}

// NormalizeLocale maps an arbitrary locale string to the base language of the
// closest supported tag, or "" when it cannot be parsed.
func NormalizeLocale(locale string) string {
	parsed, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	tag, _, _ := supportedLocales.Match(parsed)
	base, _ := tag.Base()
	return base.String()
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeContextKey{}).(string); ok {
		return v
	}
	return "en"
}
