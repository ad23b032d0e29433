package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
)

func downloadMux(v evidence.Vault) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /download/{file}", DownloadHandler{Vault: v})
	return mux
}

func savedReport(t *testing.T, v *evidence.Memory) evidence.Report {
	t.Helper()
	sess := state.NewSession(nil)
	sess.SetUserProfile(state.UserProfile{Name: "Asha"})
	r := evidence.Build("sess_1", sess, nil, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := v.Save(context.Background(), r); err != nil {
		t.Fatalf("save: %v", err)
	}
	return r
}

func TestDownloadHandler_JSON(t *testing.T) {
	v := evidence.NewMemory()
	r := savedReport(t, v)

	rr := httptest.NewRecorder()
	downloadMux(v).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download/"+r.File, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, r.File) {
		t.Fatalf("content-disposition=%q", got)
	}
	var got evidence.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.File != r.File || got.SessionID != "sess_1" {
		t.Fatalf("report=%+v", got)
	}
}

func TestDownloadHandler_Text(t *testing.T) {
	v := evidence.NewMemory()
	r := savedReport(t, v)

	rr := httptest.NewRecorder()
	downloadMux(v).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download/"+r.File+"?format=text", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q", ct)
	}
	if rr.Body.String() != r.Text() {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestDownloadHandler_InvalidName(t *testing.T) {
	rr := httptest.NewRecorder()
	downloadMux(evidence.NewMemory()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download/notes.txt", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestDownloadHandler_NotFound(t *testing.T) {
	v := evidence.NewMemory()
	r := savedReport(t, evidence.NewMemory())

	rr := httptest.NewRecorder()
	downloadMux(v).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download/"+r.File, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
