package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/actor"
)

// Resolve classifies the caller before anything else runs. Attribution
// failures end here with a 401; nothing is dispatched upstream and no
// delegated credential is touched.
func Resolve(resolver *actor.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("middleware: attribution failed")
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid caller attribution")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}
