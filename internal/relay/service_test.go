package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/internal/onboarding"
	"github.com/m3rciful/relaybot/internal/roles"
)

type sent struct {
	recipient int64
	text      string
	photoRef  string
	caption   string
}

// fakeOutbox records every send and fails deliveries to configured recipients.
type fakeOutbox struct {
	sent    []sent
	failFor map[int64]error
}

func (f *fakeOutbox) SendText(_ context.Context, recipient int64, text string) error {
	if err := f.failFor[recipient]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{recipient: recipient, text: text})
	return nil
}

func (f *fakeOutbox) SendPhoto(_ context.Context, recipient int64, photoRef, caption string) error {
	if err := f.failFor[recipient]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{recipient: recipient, photoRef: photoRef, caption: caption})
	return nil
}

func (f *fakeOutbox) textsTo(recipient int64) []string {
	var out []string
	for _, s := range f.sent {
		if s.recipient == recipient && s.photoRef == "" {
			out = append(out, s.text)
		}
	}
	return out
}

type memStore struct {
	admins       map[int64]struct{}
	flags        map[int64]string
	saveAdminErr error
}

func (m *memStore) LoadAdminIDs(_ context.Context) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(m.admins))
	for id := range m.admins {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memStore) SaveAdminIDs(_ context.Context, ids map[int64]struct{}) error {
	if m.saveAdminErr != nil {
		return m.saveAdminErr
	}
	m.admins = make(map[int64]struct{}, len(ids))
	for id := range ids {
		m.admins[id] = struct{}{}
	}
	return nil
}

func (m *memStore) LoadUserFlags(_ context.Context) (map[int64]string, error) {
	out := make(map[int64]string, len(m.flags))
	for id, flag := range m.flags {
		out[id] = flag
	}
	return out, nil
}

func (m *memStore) SaveUserFlags(_ context.Context, flags map[int64]string) error {
	m.flags = make(map[int64]string, len(flags))
	for id, flag := range flags {
		m.flags[id] = flag
	}
	return nil
}

func testRelayConfig() coreconfig.RelayConfig {
	return coreconfig.RelayConfig{
		PromotePhrase: "i am the manager",
		DemotePhrase:  "i am not the manager",
		Replies: coreconfig.RepliesConfig{
			Promoted:      "You are now an admin and will receive all future messages and photos.",
			Demoted:       "You are no longer an admin.",
			NotAdmin:      "You were not an admin.",
			OnboardNotice: "Hi! Messages and photos you send here are relayed to the people in charge. They will get back to you in this chat.",
			ForwardAck:    "Your message has been forwarded.",
			ForwardPrefix: "Forwarded from %s",
		},
	}
}

func newTestService(t *testing.T, store *memStore, outbox *fakeOutbox) *Service {
	t.Helper()
	ctx := context.Background()
	reg, err := roles.NewRegistry(ctx, store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	tracker, err := onboarding.NewTracker(ctx, store, reg.IsAdmin)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return NewService(reg, tracker, outbox, testRelayConfig())
}

func TestPromotePhrase(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "  I Am The Manager  "}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := store.admins[42]; !ok {
		t.Fatalf("sender not persisted as admin")
	}
	got := outbox.textsTo(42)
	if len(got) != 1 || got[0] != testRelayConfig().Replies.Promoted {
		t.Fatalf("expected single promoted reply, got %v", got)
	}
}

func TestPromotePersistFailureStillConfirms(t *testing.T) {
	ctx := context.Background()
	store := &memStore{saveAdminErr: errors.New("disk full")}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "i am the manager"})
	if err == nil {
		t.Fatalf("expected persist error to surface")
	}
	got := outbox.textsTo(42)
	if len(got) != 1 || got[0] != testRelayConfig().Replies.Promoted {
		t.Fatalf("promotion must still be confirmed, got %v", got)
	}

	// Membership changed in memory, so the repeat is a no-op and clean.
	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "i am the manager"}); err != nil {
		t.Fatalf("repeat promote: %v", err)
	}
}

func TestDemotePhrase(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		admins    map[int64]struct{}
		wantReply string
	}{
		{"was admin", map[int64]struct{}{42: {}}, testRelayConfig().Replies.Demoted},
		{"was not admin", nil, testRelayConfig().Replies.NotAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{admins: tc.admins}
			outbox := &fakeOutbox{}
			svc := newTestService(t, store, outbox)

			if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "i am not the manager"}); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if _, ok := store.admins[42]; ok {
				t.Fatalf("sender still admin after demote")
			}
			got := outbox.textsTo(42)
			if len(got) != 1 || got[0] != tc.wantReply {
				t.Fatalf("expected %q, got %v", tc.wantReply, got)
			}
		})
	}
}

func TestForwardFanOut(t *testing.T) {
	ctx := context.Background()
	store := &memStore{admins: map[int64]struct{}{1: {}, 2: {}, 3: {}}}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "hello"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := "Forwarded from Uma:\nhello"
	for _, adminID := range []int64{1, 2, 3} {
		got := outbox.textsTo(adminID)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("admin %d got %v, want [%q]", adminID, got, want)
		}
	}
	senderGot := outbox.textsTo(42)
	if len(senderGot) != 2 {
		t.Fatalf("sender should get notice plus ack, got %v", senderGot)
	}
	if senderGot[0] != testRelayConfig().Replies.OnboardNotice {
		t.Fatalf("first reply should be the onboarding notice, got %q", senderGot[0])
	}
	if senderGot[1] != testRelayConfig().Replies.ForwardAck {
		t.Fatalf("second reply should be the ack, got %q", senderGot[1])
	}
	if store.flags[42] != onboarding.FlagNotified {
		t.Fatalf("sender flag = %q, want notified", store.flags[42])
	}
}

func TestForwardNoticeSentOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := &memStore{admins: map[int64]struct{}{1: {}}}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	for i := 0; i < 3; i++ {
		if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	notices := 0
	for _, text := range outbox.textsTo(42) {
		if text == testRelayConfig().Replies.OnboardNotice {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("expected exactly one onboarding notice, got %d", notices)
	}
}

func TestForwardExcludesSendingAdmin(t *testing.T) {
	ctx := context.Background()
	store := &memStore{admins: map[int64]struct{}{42: {}}}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "hello"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outbox.sent) != 0 {
		t.Fatalf("sole-admin sender must produce zero sends, got %v", outbox.sent)
	}
	if _, tracked := store.flags[42]; tracked {
		t.Fatalf("admin sender must not enter the user map")
	}
}

func TestForwardNoAdminsIsSilentAfterNotice(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "hello"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := outbox.textsTo(42)
	if len(got) != 1 || got[0] != testRelayConfig().Replies.OnboardNotice {
		t.Fatalf("expected only the onboarding notice, got %v", got)
	}
	if store.flags[42] != onboarding.FlagNotified {
		t.Fatalf("sender flag = %q, want notified", store.flags[42])
	}
}

func TestForwardPartialFailureStillAcks(t *testing.T) {
	ctx := context.Background()
	store := &memStore{
		admins: map[int64]struct{}{1: {}, 2: {}, 3: {}},
		flags:  map[int64]string{42: onboarding.FlagNotified},
	}
	outbox := &fakeOutbox{failFor: map[int64]error{2: errors.New("blocked by user")}}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "hello"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	for _, adminID := range []int64{1, 3} {
		if got := outbox.textsTo(adminID); len(got) != 1 {
			t.Fatalf("admin %d should still receive the message, got %v", adminID, got)
		}
	}
	if got := outbox.textsTo(2); len(got) != 0 {
		t.Fatalf("failing admin received %v", got)
	}
	got := outbox.textsTo(42)
	if len(got) != 1 || got[0] != testRelayConfig().Replies.ForwardAck {
		t.Fatalf("one successful delivery must still ack, got %v", got)
	}
}

func TestForwardTotalFailureStaysSilent(t *testing.T) {
	ctx := context.Background()
	store := &memStore{
		admins: map[int64]struct{}{1: {}, 2: {}},
		flags:  map[int64]string{42: onboarding.FlagNotified},
	}
	outbox := &fakeOutbox{failFor: map[int64]error{
		1: errors.New("blocked"),
		2: errors.New("blocked"),
	}}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "hello"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outbox.sent) != 0 {
		t.Fatalf("total failure must stay silent, got %v", outbox.sent)
	}
}

func TestHandlePhoto(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name        string
		caption     string
		wantCaption string
	}{
		{"caption kept", "look at this", "look at this"},
		{"caption synthesized", "", "Forwarded from Uma"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{
				admins: map[int64]struct{}{1: {}},
				flags:  map[int64]string{42: onboarding.FlagNotified},
			}
			outbox := &fakeOutbox{}
			svc := newTestService(t, store, outbox)

			in := Inbound{SenderID: 42, SenderName: "Uma", PhotoRef: "file-abc", Caption: tc.caption}
			if err := svc.HandlePhoto(ctx, in); err != nil {
				t.Fatalf("handle: %v", err)
			}

			var photo *sent
			for i := range outbox.sent {
				if outbox.sent[i].photoRef != "" {
					photo = &outbox.sent[i]
				}
			}
			if photo == nil {
				t.Fatalf("no photo delivered: %v", outbox.sent)
			}
			if photo.recipient != 1 || photo.photoRef != "file-abc" || photo.caption != tc.wantCaption {
				t.Fatalf("photo = %+v, want caption %q to admin 1", *photo, tc.wantCaption)
			}
		})
	}
}

func TestPhotoWithPromotePhraseCaptionStillForwards(t *testing.T) {
	ctx := context.Background()
	store := &memStore{
		admins: map[int64]struct{}{1: {}},
		flags:  map[int64]string{42: onboarding.FlagNotified},
	}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	in := Inbound{SenderID: 42, SenderName: "Uma", PhotoRef: "file-abc", Caption: "i am the manager"}
	if err := svc.HandlePhoto(ctx, in); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := store.admins[42]; ok {
		t.Fatalf("photo caption must never promote")
	}
	if len(outbox.sent) == 0 || outbox.sent[0].photoRef == "" {
		t.Fatalf("photo should have been forwarded, got %v", outbox.sent)
	}
}

func TestPhrasesMatchWholeMessageOnly(t *testing.T) {
	ctx := context.Background()
	store := &memStore{
		admins: map[int64]struct{}{1: {}},
		flags:  map[int64]string{42: onboarding.FlagNotified},
	}
	outbox := &fakeOutbox{}
	svc := newTestService(t, store, outbox)

	if err := svc.HandleText(ctx, Inbound{SenderID: 42, SenderName: "Uma", Text: "i am the manager of a store"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := store.admins[42]; ok {
		t.Fatalf("embedded phrase must not promote")
	}
	got := outbox.textsTo(1)
	if len(got) != 1 || !strings.HasSuffix(got[0], "i am the manager of a store") {
		t.Fatalf("message should have been forwarded verbatim, got %v", got)
	}
}
