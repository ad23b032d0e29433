package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
	"github.com/sanchita-suni/Calyx/pkg/gateway/mw"
)

// DownloadHandler serves archived incident reports at /download/{file}.
// ?format=text renders the report for humans.
type DownloadHandler struct {
	Vault  evidence.Vault
	Logger *slog.Logger
}

func (h DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, r, http.StatusMethodNotAllowed, mw.ErrTypeInvalidRequest, "method not allowed", "")
		return
	}
	file := r.PathValue("file")
	if file == "" {
		file = strings.TrimPrefix(r.URL.Path, "/download/")
	}
	if !evidence.ValidFileName(file) {
		writeError(w, r, http.StatusBadRequest, mw.ErrTypeInvalidRequest, "invalid report name", "file")
		return
	}
	if h.Vault == nil {
		writeError(w, r, http.StatusNotFound, mw.ErrTypeNotFound, "report not found", "file")
		return
	}

	report, err := h.Vault.Load(r.Context(), file)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, mw.ErrTypeNotFound, "report not found", "file")
			return
		}
		if h.Logger != nil {
			h.Logger.Error("evidence load failed", "file", file, "error", err)
		}
		writeError(w, r, http.StatusInternalServerError, mw.ErrTypeAPI, "could not load report", "")
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		name := strings.TrimSuffix(file, ".json") + ".txt"
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Text()))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file+`"`)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
