package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/asembed/embed-server/internal/store"
)

type fakeDocs struct {
	docs map[int64]*store.Document
	err  error
	gets int
}

func (f *fakeDocs) Get(_ context.Context, id int64) (*store.Document, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[id], nil
}

func TestResolve_Unavailable(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		1: {ID: 1, Status: store.StatusDraft, Content: "secret draft"},
	}}
	r := NewResolver(docs)
	ctx := context.Background()

	tests := []struct {
		name string
		id   int64
	}{
		{"draft", 1},
		{"nonexistent", 99},
		{"zero id", 0},
		{"negative id", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.id)
			if err != nil {
				t.Fatalf("Resolve(%d): %v", tt.id, err)
			}
			if got != "" {
				t.Errorf("Resolve(%d) = %q, want empty", tt.id, got)
			}
		})
	}
}

func TestResolve_NeverLeaksDraftContent(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		1: {ID: 1, Status: store.StatusDraft, Content: "unpublished words"},
	}}
	r := NewResolver(docs)
	got, _ := r.Resolve(context.Background(), 1)
	if strings.Contains(got, "unpublished") {
		t.Fatalf("draft content leaked: %q", got)
	}
}

func TestResolve_Published(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		42: {ID: 42, Status: store.StatusPublished, Content: "Hello"},
	}}
	r := NewResolver(docs)

	got, err := r.Resolve(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if got != "<p>Hello</p>" {
		t.Errorf("got %q, want %q", got, "<p>Hello</p>")
	}
}

func TestResolve_BuilderOverride(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		5: {
			ID:          5,
			Status:      store.StatusPublished,
			Content:     "raw body ignored",
			BuilderHTML: `<div class="builder"><h2>Built</h2></div>`,
		},
	}}
	r := NewResolver(docs)

	got, err := r.Resolve(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Built") {
		t.Errorf("builder output missing: %q", got)
	}
	if strings.Contains(got, "raw body ignored") {
		t.Errorf("raw body should be replaced by builder rendering: %q", got)
	}
}

func TestResolve_SanitizesScripts(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		3: {ID: 3, Status: store.StatusPublished,
			Content: `<p onmouseover="alert(1)">hi</p><script>alert(2)</script>`},
	}}
	r := NewResolver(docs)

	got, err := r.Resolve(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "script") || strings.Contains(got, "alert") || strings.Contains(got, "onmouseover") {
		t.Errorf("unsafe markup survived sanitization: %q", got)
	}
	if !strings.Contains(got, "hi") {
		t.Errorf("benign content lost: %q", got)
	}
}

func TestResolve_ExpandsEmbeds(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		1: {ID: 1, Status: store.StatusPublished, Content: `outer [embed id="2"]`},
		2: {ID: 2, Status: store.StatusPublished, Content: "inner"},
	}}
	r := NewResolver(docs)

	got, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "inner") {
		t.Errorf("embedded content missing: %q", got)
	}
	if !strings.Contains(got, "embedded-content") {
		t.Errorf("embed wrapper missing: %q", got)
	}
}

func TestResolve_EmbedCycleTerminates(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		1: {ID: 1, Status: store.StatusPublished, Content: `a [embed id="2"]`},
		2: {ID: 2, Status: store.StatusPublished, Content: `b [embed id="1"]`},
	}}
	r := NewResolver(docs)

	got, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	// the second visit of document 1 resolves empty instead of recursing
	if !strings.Contains(got, "a") || !strings.Contains(got, "b") {
		t.Errorf("cycle content wrong: %q", got)
	}
}

func TestResolve_SelfEmbedWarning(t *testing.T) {
	docs := &fakeDocs{docs: map[int64]*store.Document{
		1: {ID: 1, Status: store.StatusPublished, Content: `[embed id="1"]`},
	}}
	r := NewResolver(docs)

	got, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "cannot embed itself") {
		t.Errorf("self-embed warning missing: %q", got)
	}
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	docs := &fakeDocs{err: errors.New("db down")}
	r := NewResolver(docs)

	if _, err := r.Resolve(context.Background(), 1); err == nil {
		t.Fatal("expected error from store failure")
	}
}
