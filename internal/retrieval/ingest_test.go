package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bankops/mfkb/internal/embedding"
	"github.com/bankops/mfkb/internal/policy"
	"github.com/bankops/mfkb/internal/vectorstore"
)

func TestAddDocumentsReportsPerDocument(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "good", Content: "VSAM status 35 file not found."},
		{ID: "bad", Content: "   "},
	}
	results, err := engine.AddDocuments(ctx, docs)
	if err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("good document failed: %v", results[0].Err)
	}
	if results[0].Chunks != 1 {
		t.Errorf("good document chunks = %d, want 1", results[0].Chunks)
	}
	if results[1].Err == nil {
		t.Error("blank document succeeded, want error")
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Errorf("store count = %d, want 1", count)
	}
}

func TestAddDocumentsAllFailed(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.AddDocuments(context.Background(), []Document{
		{ID: "a", Content: ""},
		{ID: "b", Content: "  "},
	})
	if !errors.Is(err, ErrAllDocumentsFailed) {
		t.Errorf("AddDocuments() error = %v, want ErrAllDocumentsFailed", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestAddDocumentsEmptyBatch(t *testing.T) {
	engine, _ := newTestEngine(t)

	var ve *ValidationError
	if _, err := engine.AddDocuments(context.Background(), nil); !errors.As(err, &ve) {
		t.Errorf("AddDocuments(nil) error = %v, want ValidationError", err)
	}
}

func TestAddDocumentsAssignsIDsAndTags(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.AddDocuments(context.Background(), []Document{
		{Content: "JCL abend S0C7 in the nightly batch, check the DB2 plan."},
	})
	if err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	if results[0].DocumentID == "" {
		t.Error("no document ID assigned")
	}
	for _, tag := range []string{"abend", "batch", "db2", "jcl", "s0c7"} {
		found := false
		for _, got := range results[0].Tags {
			if got == tag {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("tag %q missing from %v", tag, results[0].Tags)
		}
	}
}

func TestAddDocumentsChunkMetadata(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddDocuments(ctx, []Document{{
		ID:      "doc-meta",
		Content: "CICS region restart after abend.",
		Metadata: map[string]string{
			vectorstore.MetaClassification: policy.ClassificationInternal,
		},
	}})
	if err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	query, _, _ := (&fakeEmbedder{}).GenerateWithStats(ctx, []string{"CICS region abend"})
	found, err := store.Query(ctx, query[0], 1, nil)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("got %d candidates, want 1", len(found))
	}
	meta := found[0].Chunk.Metadata
	if meta[vectorstore.MetaClassification] != policy.ClassificationInternal {
		t.Errorf("classification = %q", meta[vectorstore.MetaClassification])
	}
	if !strings.Contains(meta[vectorstore.MetaTags], "cics") {
		t.Errorf("tags = %q, want cics included", meta[vectorstore.MetaTags])
	}
	if found[0].Chunk.ParentID != "doc-meta" {
		t.Errorf("parent = %q, want doc-meta", found[0].Chunk.ParentID)
	}
}

func TestUpdateDocumentReplacesChunks(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.AddDocuments(ctx, []Document{
		{ID: "doc-u", Content: "VSAM status 35 file not found."},
	}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	if err := engine.UpdateDocument(ctx, Document{
		ID:      "doc-u",
		Content: "CICS region abend after payroll run.",
	}); err != nil {
		t.Fatalf("UpdateDocument() error: %v", err)
	}

	count, _ := store.Count(ctx)
	if count != 1 {
		t.Errorf("store count = %d after update, want 1", count)
	}

	query, _, _ := (&fakeEmbedder{}).GenerateWithStats(ctx, []string{"CICS payroll abend"})
	found, err := store.Query(ctx, query[0], 1, nil)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(found) != 1 || !strings.Contains(found[0].Chunk.Text, "CICS") {
		t.Errorf("updated content not found, got %v", found)
	}
}

func TestUpdateDocumentKeepsChunksWhenEmbedFails(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	embedder := &fakeEmbedder{}
	engine := New(store, embedder, nil)
	ctx := context.Background()

	original := "VSAM status 35 file not found."
	if _, err := engine.AddDocuments(ctx, []Document{
		{ID: "doc-k", Content: original},
	}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	embedder.err = &embedding.ProviderError{Provider: "stub", Status: 429, Err: errors.New("rate limited")}
	err := engine.UpdateDocument(ctx, Document{ID: "doc-k", Content: "replacement text"})
	var pe *embedding.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("UpdateDocument() error = %v, want wrapped ProviderError", err)
	}

	// A failed re-embedding must not have removed the stored chunks.
	count, countErr := store.Count(ctx)
	if countErr != nil {
		t.Fatalf("Count() error: %v", countErr)
	}
	if count != 1 {
		t.Fatalf("store count = %d after failed update, want 1", count)
	}

	embedder.err = nil
	query, _, _ := embedder.GenerateWithStats(ctx, []string{original})
	found, queryErr := store.Query(ctx, query[0], 1, nil)
	if queryErr != nil {
		t.Fatalf("Query() error: %v", queryErr)
	}
	if len(found) != 1 || found[0].Chunk.Text != original {
		t.Errorf("original chunk lost after failed update, got %v", found)
	}
}

func TestUpdateDocumentRequiresID(t *testing.T) {
	engine, _ := newTestEngine(t)

	var ve *ValidationError
	err := engine.UpdateDocument(context.Background(), Document{Content: "text"})
	if !errors.As(err, &ve) {
		t.Errorf("UpdateDocument() error = %v, want ValidationError", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.AddDocuments(ctx, []Document{
		{ID: "doc-d", Content: "VSAM status 35 file not found."},
	}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	if err := engine.DeleteDocument(ctx, "doc-d"); err != nil {
		t.Fatalf("DeleteDocument() error: %v", err)
	}

	count, _ := store.Count(ctx)
	if count != 0 {
		t.Errorf("store count = %d after delete, want 0", count)
	}

	var ve *ValidationError
	if err := engine.DeleteDocument(ctx, ""); !errors.As(err, &ve) {
		t.Errorf("DeleteDocument(\"\") error = %v, want ValidationError", err)
	}
}
