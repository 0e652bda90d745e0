package middleware

import (
	"net/http"

	"github.com/minisuite/minisuite/internal/validation"
)

// Body decodes the JSON body into T and validates it. On success the value is
// available downstream through validation.BodyFrom[T].
func Body[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload, err := validation.DecodeBody[T](r.Body)
			if err != nil {
				respondWithError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(validation.WithBody(r.Context(), payload)))
		})
	}
}

// Query decodes the query string into T and validates it. On success the value is
// available downstream through validation.QueryFrom[T].
func Query[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload, err := validation.DecodeQuery[T](r.URL.Query())
			if err != nil {
				respondWithError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(validation.WithQuery(r.Context(), payload)))
		})
	}
}
