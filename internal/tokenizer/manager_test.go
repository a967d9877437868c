package tokenizer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/tokenbridge/internal/codec"
)

func newTestManager(t *testing.T) (*Manager, *byteGuest) {
	t.Helper()
	guest := newByteGuest()
	return NewManager(guest, codec.MsgPack{}, testExports, zaptest.NewLogger(t)), guest
}

func loadTestManifest(t *testing.T, m *Manager) *Manifest {
	t.Helper()
	dir := writeTokenizer(t, t.TempDir(), "cl100k", tiktokenManifest, tiktokenFiles())
	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Load(context.Background(), manifest); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return manifest
}

func TestManager_EncodeDecodeRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	loadTestManifest(t, m)
	ctx := context.Background()

	ids, err := m.Encode(ctx, "cl100k_base", "hi!", nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	want := []uint32{'h', 'i', '!'}
	if len(ids) != len(want) {
		t.Fatalf("Encode() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Encode() = %v, want %v", ids, want)
		}
	}

	special := true
	text, err := m.Decode(ctx, "cl100k_base", ids, &special)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if text != "hi!" {
		t.Errorf("Decode() = %q, want %q", text, "hi!")
	}
}

func TestManager_EncodeEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	loadTestManifest(t, m)

	ids, err := m.Encode(context.Background(), "cl100k_base", "", nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no tokens, got %v", ids)
	}
}

func TestManager_NotLoaded(t *testing.T) {
	m, guest := newTestManager(t)
	ctx := context.Background()

	var notLoaded *NotLoadedError

	if _, err := m.Encode(ctx, "gpt2", "hello", nil); !errors.As(err, &notLoaded) {
		t.Errorf("Encode(): expected NotLoadedError, got %v", err)
	}
	if _, err := m.Decode(ctx, "gpt2", []uint32{1}, nil); !errors.As(err, &notLoaded) {
		t.Errorf("Decode(): expected NotLoadedError, got %v", err)
	}
	if err := m.Unload(ctx, "gpt2"); !errors.As(err, &notLoaded) {
		t.Errorf("Unload(): expected NotLoadedError, got %v", err)
	}

	if guest.callCount() != 0 {
		t.Errorf("unknown names must not reach the guest, got %d calls", guest.callCount())
	}
}

func TestManager_AlreadyLoaded(t *testing.T) {
	m, guest := newTestManager(t)
	manifest := loadTestManifest(t, m)
	calls := guest.callCount()

	err := m.Load(context.Background(), manifest)

	var dup *AlreadyLoadedError
	if !errors.As(err, &dup) {
		t.Fatalf("expected AlreadyLoadedError, got %v", err)
	}
	if guest.callCount() != calls {
		t.Error("duplicate load must not reach the guest")
	}
}

func TestManager_Unload(t *testing.T) {
	m, guest := newTestManager(t)
	loadTestManifest(t, m)
	ctx := context.Background()

	if err := m.Unload(ctx, "cl100k_base"); err != nil {
		t.Fatalf("Unload() failed: %v", err)
	}

	if len(m.Loaded()) != 0 {
		t.Errorf("expected no loaded tokenizers, got %v", m.Loaded())
	}
	if guest.loaded["cl100k_base"] {
		t.Error("guest should have dropped the tokenizer")
	}

	// Loading again after unload is allowed.
	loadTestManifest(t, m)
	if len(m.Loaded()) != 1 {
		t.Errorf("expected tokenizer to be reloaded, got %v", m.Loaded())
	}
}

func TestManager_LoadGuestFailure(t *testing.T) {
	m, guest := newTestManager(t)
	guestErr := errors.New("invalid regex")
	guest.failOn[testExports.Load] = guestErr

	dir := writeTokenizer(t, t.TempDir(), "cl100k", tiktokenManifest, tiktokenFiles())
	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = m.Load(context.Background(), manifest)

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if !errors.Is(err, guestErr) {
		t.Error("LoadError should wrap the guest error")
	}
	if loadErr.TokenizerName != "cl100k_base" {
		t.Errorf("unexpected tokenizer name: %s", loadErr.TokenizerName)
	}
	if m.Registry().Count() != 0 {
		t.Error("failed load must not register the tokenizer")
	}
}

func TestManager_GuestErrorPassesThrough(t *testing.T) {
	m, guest := newTestManager(t)
	loadTestManifest(t, m)

	// Drop the tokenizer behind the manager's back.
	delete(guest.loaded, "cl100k_base")

	_, err := m.Encode(context.Background(), "cl100k_base", "x", nil)
	if err == nil || err.Error() != "Tokenizer not found" {
		t.Errorf("expected guest error, got %v", err)
	}
}

func TestManager_LoadAll(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	writeTokenizer(t, root, "cl100k", tiktokenManifest, tiktokenFiles())
	writeTokenizer(t, root, "bert", huggingfaceManifest, huggingfaceFiles())

	if err := m.LoadAll(context.Background(), []string{root}); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}

	loaded := m.Loaded()
	if len(loaded) != 2 || loaded[0] != "bert" || loaded[1] != "cl100k_base" {
		t.Errorf("unexpected loaded tokenizers: %v", loaded)
	}
}

func TestManager_LoadAllEmpty(t *testing.T) {
	guest := newByteGuest()
	m := NewManager(guest, codec.MsgPack{}, testExports, zap.NewNop())

	if err := m.LoadAll(context.Background(), []string{t.TempDir()}); err != nil {
		t.Errorf("LoadAll() with no manifests should succeed, got %v", err)
	}
	if guest.callCount() != 0 {
		t.Error("no guest calls expected")
	}
}

func TestManager_LoadAllSkipsFailures(t *testing.T) {
	m, guest := newTestManager(t)
	guest.reject["bert"] = errors.New("invalid model")

	root := t.TempDir()
	writeTokenizer(t, root, "cl100k", tiktokenManifest, tiktokenFiles())
	writeTokenizer(t, root, "bert", huggingfaceManifest, huggingfaceFiles())

	if err := m.LoadAll(context.Background(), []string{root}); err != nil {
		t.Fatalf("LoadAll() should skip a failing tokenizer, got %v", err)
	}

	loaded := m.Loaded()
	if len(loaded) != 1 || loaded[0] != "cl100k_base" {
		t.Errorf("expected only cl100k_base to be loaded, got %v", loaded)
	}
	if guest.callCount() != 2 {
		t.Errorf("every manifest should be attempted, got %d calls", guest.callCount())
	}
}

func TestManager_CheckExports(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.CheckExports(); err != nil {
		t.Fatalf("CheckExports() failed: %v", err)
	}

	exports := testExports
	exports.Decode = "detokenize"
	m = NewManager(newByteGuest(), codec.MsgPack{}, exports, zap.NewNop())
	if err := m.CheckExports(); err == nil {
		t.Error("CheckExports() should fail for a missing export")
	}
}
