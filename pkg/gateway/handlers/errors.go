package handlers

import (
	"net/http"

	"github.com/sanchita-suni/Calyx/pkg/gateway/mw"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, typ, message, param string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	mw.WriteJSONError(w, status, &mw.APIError{
		Type:      typ,
		Message:   message,
		Param:     param,
		RequestID: reqID,
	})
}
