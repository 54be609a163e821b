package core

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"entitysync/pkg/domain"
)

func TestClosedViewSuppressesNotificationsButStillRollsBack(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{}
	remote.setHandler(func(remoteCall) (domain.Response, error) {
		<-release
		return domain.Response{}, &domain.RemoteError{Status: http.StatusInternalServerError, Message: "boom"}
	})
	engine := newTestEngine(t, remote)
	notifier := &captureNotifier{}
	view := engine.OpenView(notifier)
	ref := teamFixture().Ref()

	sub := view.Submit(context.Background(), domain.PatchFields(ref, map[string]any{"name": "Left behind"}))
	waitForPending(t, engine, ref)
	view.Close()
	close(release)

	if _, err := sub.Wait(); !errors.Is(err, domain.ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	got, _ := engine.Store().Get(ref)
	if got.Attr("name") != "Cool Team" {
		t.Fatalf("expected rollback, got %v", got.Attr("name"))
	}
	if notes := notifier.Notes(); len(notes) != 0 {
		t.Fatalf("closed view must not be notified, got %+v", notes)
	}
	view.Notify("late", domain.NotifyInfo)
	if len(notifier.Notes()) != 0 {
		t.Fatalf("direct notify after close must be dropped")
	}
}

func TestOpenViewReceivesOneNotificationPerFailure(t *testing.T) {
	remote := &fakeRemote{handler: remoteFailure(http.StatusInternalServerError, "")}
	engine := newTestEngine(t, remote)
	first := &captureNotifier{}
	second := &captureNotifier{}
	viewA := engine.OpenView(first)
	viewB := engine.OpenView(second)
	defer viewA.Close()
	defer viewB.Close()

	_, _ = viewA.Mutate(context.Background(), domain.PatchFields(teamFixture().Ref(), map[string]any{"name": "A"}))
	if len(first.Notes()) != 1 || len(second.Notes()) != 0 {
		t.Fatalf("notification must reach only the submitting view: a=%d b=%d", len(first.Notes()), len(second.Notes()))
	}
}

func TestViewWatchReleasesOnClose(t *testing.T) {
	engine := newTestEngine(t, &fakeRemote{})
	view := engine.OpenView(nil)
	ref := teamFixture().Ref()
	var kinds []EventKind
	view.Watch(ref, func(ev StoreEvent) { kinds = append(kinds, ev.Kind) })

	if _, err := view.Mutate(context.Background(), domain.PatchFields(ref, map[string]any{"location": "Lab"})); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	view.Close()
	view.Close()

	if !view.Closed() {
		t.Fatalf("expected closed view")
	}
	if _, ok := engine.Store().Get(ref); ok {
		t.Fatalf("expected watched entity to be released and evicted")
	}
	if len(kinds) != 1 || kinds[0] != EventOptimistic {
		t.Fatalf("subscriber must stop before eviction, got %v", kinds)
	}
}

func TestViewCallDoesNotNotifyAfterClose(t *testing.T) {
	remote := &fakeRemote{handler: remoteFailure(http.StatusBadRequest, "bad")}
	engine := newTestEngine(t, remote)
	notifier := &captureNotifier{}
	view := engine.OpenView(notifier)

	if _, err := view.Call(context.Background(), http.MethodGet, "teams/7", nil); err == nil {
		t.Fatalf("expected error")
	}
	view.Close()
	if _, err := view.Call(context.Background(), http.MethodGet, "teams/7", nil); err == nil {
		t.Fatalf("expected error")
	}
	if notes := notifier.Notes(); len(notes) != 1 || notes[0].Message != "bad" {
		t.Fatalf("unexpected notifications %+v", notes)
	}
}

func TestClosedViewDoesNotResurrectEvictedEntity(t *testing.T) {
	cases := []struct {
		name    string
		respond func() (domain.Response, error)
		wantErr bool
	}{
		{
			name: "rollback",
			respond: func() (domain.Response, error) {
				return domain.Response{}, &domain.RemoteError{Status: http.StatusInternalServerError, Message: "boom"}
			},
			wantErr: true,
		},
		{
			name: "reconcile",
			respond: func() (domain.Response, error) {
				server := collectionFixture()
				server.Attributes["name"] = "Server Faves"
				body, err := domain.EncodeEntity(server)
				return domain.Response{Status: http.StatusOK, Body: body}, err
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			release := make(chan struct{})
			remote := &fakeRemote{}
			remote.setHandler(func(remoteCall) (domain.Response, error) {
				<-release
				return tc.respond()
			})
			engine := newTestEngine(t, remote)
			view := engine.OpenView(nil)
			ref := collectionFixture().Ref()
			view.Watch(ref, func(StoreEvent) {})

			sub := view.Submit(context.Background(), domain.PatchFields(ref, map[string]any{"name": "Renamed"}))
			waitForPending(t, engine, ref)
			view.Close()
			if _, ok := engine.Store().Get(ref); ok {
				t.Fatalf("expected close to evict %s", ref)
			}
			close(release)

			_, err := sub.Wait()
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			if _, ok := engine.Store().Get(ref); ok {
				t.Fatalf("evicted entity was stored again")
			}
			for _, stored := range engine.Store().Refs() {
				if stored == ref {
					t.Fatalf("evicted entity listed in %v", engine.Store().Refs())
				}
			}
		})
	}
}
