package server

import (
	"net/http"

	apperrors "github.com/minisuite/minisuite/internal/errors"
)

// HandleError is the single responder shared by middleware, handlers and the router.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
