package i18n

import "net/http"

// Middleware injects a localizer into every request context. The "lang"
// query parameter wins over the Accept-Language header.
func (c *Catalog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefs []string
		if lang := r.URL.Query().Get("lang"); lang != "" {
			prefs = append(prefs, lang)
		}
		if accept := r.Header.Get("Accept-Language"); accept != "" {
			prefs = append(prefs, accept)
		}
		ctx := WithLocalizer(r.Context(), c.NewLocalizer(prefs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
