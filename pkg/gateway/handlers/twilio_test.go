package handlers

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/directory"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/phone"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/sessions"
)

func TestTwilioResolver_LiveSession(t *testing.T) {
	parent := state.NewSession(nil)
	parent.SetUserProfile(state.UserProfile{Name: "Asha"})
	ended := 0

	reg := sessions.NewRegistry()
	unregister := reg.Register("sess_1", sessions.Handle{
		Cancel:    func() {},
		Fork:      parent.Fork,
		CallEnded: func() { ended++ },
	})
	defer unregister()

	h := TwilioHandler{Sessions: reg}
	b, err := h.resolver(&Runtime{}, slog.Default())(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !b.Session.IsPhoneCall() || b.Session.UserProfile().Name != "Asha" {
		t.Fatalf("unexpected fork: phone=%v name=%q", b.Session.IsPhoneCall(), b.Session.UserProfile().Name)
	}
	b.OnEnd()
	if ended != 1 {
		t.Fatalf("ended=%d", ended)
	}
}

func TestTwilioResolver_DirectoryFallback(t *testing.T) {
	dir := directory.NewMemory(time.Hour)
	ctx := context.Background()
	profile := state.UserProfile{Name: "Asha", Contacts: []state.Contact{{Name: "Ravi", Phone: "+15550001"}}}
	if err := dir.PutProfile(ctx, "sess_gone", profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	if err := dir.PutLocation(ctx, "sess_gone", state.Location{Lat: 12.97, Lng: 77.59}); err != nil {
		t.Fatalf("put location: %v", err)
	}

	h := TwilioHandler{Sessions: sessions.NewRegistry()}
	b, err := h.resolver(&Runtime{Directory: dir}, slog.Default())(ctx, "sess_gone")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if b.OnEnd != nil {
		t.Fatalf("directory sessions have no live parent to notify")
	}
	if got := b.Session.Conversation().FirstResponder(); got != "Ravi" {
		t.Fatalf("first responder=%q", got)
	}
	if loc := b.Session.Location(); loc == nil || loc.Lat != 12.97 {
		t.Fatalf("location=%v", loc)
	}
}

func TestTwilioResolver_Unknown(t *testing.T) {
	h := TwilioHandler{Sessions: sessions.NewRegistry()}
	_, err := h.resolver(&Runtime{Directory: directory.NewMemory(time.Hour)}, slog.Default())(context.Background(), "nope")
	if !errors.Is(err, phone.ErrSessionNotFound) {
		t.Fatalf("err=%v", err)
	}
}
