package handlers

import (
	"net/http"

	"github.com/sanchita-suni/Calyx/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, mw.ErrTypeNotFound, "not found", "")
}
