package store

import (
	"testing"
	"time"

	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/types"
)

func newTestImage(t *testing.T) *ir.PipelineImage {
	t.Helper()
	d := ir.NewDAG()
	d.AddDataNode("in", types.SemanticType{Kind: types.KindString})
	img, err := ir.NewPipelineImage(d, "syn-hash", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewPipelineImage: %v", err)
	}
	return img
}

func TestStorePutGet(t *testing.T) {
	s := New()
	img := newTestImage(t)
	s.Put(img)

	got, err := s.Get(img.StructuralHash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SyntacticHash != "syn-hash" {
		t.Fatalf("unexpected image: %+v", got)
	}
}

func TestStoreGetUnknownHashReturnsNotFoundError(t *testing.T) {
	s := New()
	_, err := s.Get("sha256:missing")
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestStoreAliasResolveAndGetByName(t *testing.T) {
	s := New()
	img := newTestImage(t)
	s.Put(img)
	s.Alias("latest", img.StructuralHash)

	hash, ok := s.Resolve("latest")
	if !ok || hash != img.StructuralHash {
		t.Fatalf("Resolve: got (%q, %v)", hash, ok)
	}

	got, err := s.GetByName("latest")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.StructuralHash != img.StructuralHash {
		t.Fatalf("GetByName returned wrong image")
	}
}

func TestStoreRemoveDropsAliases(t *testing.T) {
	s := New()
	img := newTestImage(t)
	s.Put(img)
	s.Alias("latest", img.StructuralHash)

	if err := s.Remove(img.StructuralHash); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Resolve("latest"); ok {
		t.Fatal("expected the alias to be dropped along with its image")
	}
	if err := s.Remove(img.StructuralHash); err == nil {
		t.Fatal("expected removing an already-removed hash to fail")
	}
}

func TestStoreResolveReferenceHandlesBothForms(t *testing.T) {
	s := New()
	img := newTestImage(t)
	s.Put(img)
	s.Alias("latest", img.StructuralHash)

	byHash, err := s.ResolveReference(img.StructuralHash)
	if err != nil {
		t.Fatalf("ResolveReference(hash): %v", err)
	}
	byAlias, err := s.ResolveReference("latest")
	if err != nil {
		t.Fatalf("ResolveReference(alias): %v", err)
	}
	if byHash.StructuralHash != byAlias.StructuralHash {
		t.Fatal("both reference forms should resolve to the same image")
	}
}

func TestStoreListImagesAndAliasesAreSorted(t *testing.T) {
	s := New()
	imgA := newTestImage(t)
	s.Put(imgA)
	s.Alias("b-alias", imgA.StructuralHash)
	s.Alias("a-alias", imgA.StructuralHash)

	images := s.ListImages()
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}

	aliases := s.ListAliases()
	if len(aliases) != 2 || aliases[0].Name != "a-alias" || aliases[1].Name != "b-alias" {
		t.Fatalf("expected aliases sorted by name, got %+v", aliases)
	}
}
