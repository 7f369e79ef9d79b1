package store

import (
	"context"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/longshot/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	s := New(db)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "sess_1", "https://example.com/a", "example.com"); err != nil {
		t.Fatal(err)
	}

	sess, err := s.GetSession(ctx, "sess_1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != StatusRunning {
		t.Fatalf("status = %s, want running", sess.Status)
	}

	if err := s.CompleteSession(ctx, "sess_1", 5); err != nil {
		t.Fatal(err)
	}
	sess, err = s.GetSession(ctx, "sess_1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != StatusComplete || sess.TileCount != 5 {
		t.Fatalf("session = %+v, want complete with 5 tiles", sess)
	}
	if sess.CompletedAt.IsZero() {
		t.Fatal("CompletedAt not set")
	}
}

func TestFailSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "sess_2", "https://example.com", "example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.FailSession(ctx, "sess_2", "the browser refused to rasterize"); err != nil {
		t.Fatal(err)
	}

	sess, err := s.GetSession(ctx, "sess_2")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != StatusFailed || sess.Error == "" {
		t.Fatalf("session = %+v, want failed with message", sess)
	}
}

func TestFinish_MissingSession(t *testing.T) {
	s := testStore(t)
	if err := s.CompleteSession(context.Background(), "nope", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifactRoundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "sess_3", "https://example.com", "example.com"); err != nil {
		t.Fatal(err)
	}

	in := &Artifact{
		ID:        "art_1",
		SessionID: "sess_3",
		Part:      1,
		Filename:  "example.com_1_20260830T101500.png",
		MIME:      "image/png",
		Width:     1280,
		Height:    9000,
		Oversized: true,
		Bytes:     []byte{0x89, 'P', 'N', 'G'},
	}
	if err := s.SaveArtifact(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetArtifact(ctx, "art_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != in.Filename || got.MIME != in.MIME || !got.Oversized {
		t.Fatalf("artifact = %+v", got)
	}
	if string(got.Bytes) != string(in.Bytes) {
		t.Fatal("bytes did not round-trip")
	}

	list, err := s.ListArtifacts(ctx, "sess_3")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "art_1" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Bytes != nil {
		t.Fatal("listing must not load artifact bytes")
	}
}

func TestSaveArtifacts_Transactional(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "sess_4", "https://example.com", "example.com"); err != nil {
		t.Fatal(err)
	}

	arts := []*Artifact{
		{ID: "art_a", SessionID: "sess_4", Part: 1, Filename: "a.png", MIME: "image/png", Width: 10, Height: 10, Bytes: []byte{1}},
		{ID: "art_b", SessionID: "sess_4", Part: 2, Filename: "b.png", MIME: "image/png", Width: 10, Height: 10, Bytes: []byte{2}},
	}
	if err := s.SaveArtifacts(ctx, arts); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListArtifacts(ctx, "sess_4")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Part != 1 || list[1].Part != 2 {
		t.Fatalf("list = %+v", list)
	}

	// A duplicate ID in the batch rolls back the whole save.
	bad := []*Artifact{
		{ID: "art_c", SessionID: "sess_4", Part: 3, Filename: "c.png", MIME: "image/png", Width: 10, Height: 10, Bytes: []byte{3}},
		{ID: "art_c", SessionID: "sess_4", Part: 4, Filename: "d.png", MIME: "image/png", Width: 10, Height: 10, Bytes: []byte{4}},
	}
	if err := s.SaveArtifacts(ctx, bad); err == nil {
		t.Fatal("expected error for duplicate artifact id")
	}
	list, _ = s.ListArtifacts(ctx, "sess_4")
	if len(list) != 2 {
		t.Fatalf("partial batch persisted: %d artifacts", len(list))
	}
}

func TestGetArtifact_Missing(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetArtifact(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
