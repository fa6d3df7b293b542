package documents

import (
	"context"
	"errors"
	"testing"
)

func TestCreateDefaultsTitleAndOwnerCollaborator(t *testing.T) {
	service, _ := newTestService(t)

	doc, err := service.Create(context.Background(), "user-1", "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != defaultTitle {
		t.Fatalf("expected default title, got %q", doc.Title)
	}
	if doc.OwnerID != "user-1" {
		t.Fatalf("unexpected owner: %q", doc.OwnerID)
	}
	if len(doc.Collaborators) != 1 || doc.Collaborators[0] != "user-1" {
		t.Fatalf("expected owner as sole collaborator, got %v", doc.Collaborators)
	}
	if doc.Content != "" {
		t.Fatalf("expected empty content, got %q", doc.Content)
	}
}

func TestGetEnforcesAccess(t *testing.T) {
	service, _ := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Get(context.Background(), doc.ID, "owner"); err != nil {
		t.Fatalf("owner should have access: %v", err)
	}
	if _, err := service.Get(context.Background(), doc.ID, "stranger"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if _, err := service.Get(context.Background(), "missing", "owner"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := service.AddCollaborator(context.Background(), doc.ID, "stranger"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := service.Get(context.Background(), doc.ID, "stranger")
	if err != nil {
		t.Fatalf("collaborator should have access: %v", err)
	}
	if len(got.Collaborators) != 2 {
		t.Fatalf("expected 2 collaborators, got %v", got.Collaborators)
	}
}

func TestAddCollaboratorIsIdempotent(t *testing.T) {
	service, _ := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := service.AddCollaborator(context.Background(), doc.ID, "friend"); err != nil {
			t.Fatalf("unexpected error on attempt %d: %v", i, err)
		}
	}

	got, err := service.Get(context.Background(), doc.ID, "owner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Collaborators) != 2 {
		t.Fatalf("expected 2 collaborators, got %v", got.Collaborators)
	}
}

func TestSaveWritesContentAndAppendsOneVersion(t *testing.T) {
	service, db := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Save(context.Background(), doc.ID, "v2", "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := service.Content(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "v2" {
		t.Fatalf("expected content %q, got %q", "v2", content)
	}

	var versions []Version
	if err := db.Find(&versions).Error; err != nil {
		t.Fatalf("failed to load versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected exactly one version, got %d", len(versions))
	}
	// The version snapshots the saved content, not the prior content.
	if versions[0].Content != "v2" {
		t.Fatalf("expected version content %q, got %q", "v2", versions[0].Content)
	}
	if versions[0].SavedBy != "owner" {
		t.Fatalf("unexpected saver: %q", versions[0].SavedBy)
	}
}

func TestSaveDoesNotDeduplicateIdenticalContent(t *testing.T) {
	service, db := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := service.Save(context.Background(), doc.ID, "same", "owner"); err != nil {
			t.Fatalf("unexpected error on save %d: %v", i, err)
		}
	}

	var count int64
	if err := db.Model(&Version{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count versions: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 versions for repeated saves, got %d", count)
	}
}

func TestSaveMissingDocument(t *testing.T) {
	service, _ := newTestService(t)

	if err := service.Save(context.Background(), "missing", "content", "owner"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	service, _ := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, content := range []string{"one", "two", "three"} {
		if err := service.Save(context.Background(), doc.ID, content, "owner"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	versions, err := service.ListVersions(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].Content != "three" || versions[2].Content != "one" {
		t.Fatalf("expected newest-first ordering, got %q..%q", versions[0].Content, versions[2].Content)
	}
}

func TestRevertSnapshotsCurrentContentFirst(t *testing.T) {
	service, _ := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Save(context.Background(), doc.ID, "v2", "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target, err := service.ListVersions(context.Background(), doc.ID)
	if err != nil || len(target) != 1 {
		t.Fatalf("expected one version, got %d (err %v)", len(target), err)
	}
	if err := service.Save(context.Background(), doc.ID, "v3", "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reverted, err := service.Revert(context.Background(), doc.ID, target[0].ID, "reverter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reverted.Content != "v2" {
		t.Fatalf("expected reverted content %q, got %q", "v2", reverted.Content)
	}

	versions, err := service.ListVersions(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// v2 save, v3 save, plus the pre-revert safety snapshot of v3.
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].Content != "v3" {
		t.Fatalf("expected newest version to capture pre-revert content, got %q", versions[0].Content)
	}
	if versions[0].SavedBy != "reverter" {
		t.Fatalf("expected safety snapshot attributed to acting user, got %q", versions[0].SavedBy)
	}
}

func TestRevertRoundTripRestoresPreRevertContent(t *testing.T) {
	service, _ := newTestService(t)

	doc, err := service.Create(context.Background(), "owner", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Save(context.Background(), doc.ID, "old", "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	versions, err := service.ListVersions(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oldVersion := versions[0]

	if err := service.Save(context.Background(), doc.ID, "current", "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Revert(context.Background(), doc.ID, oldVersion.ID, "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The newest version is now the safety snapshot of "current";
	// reverting to it restores the pre-revert state exactly.
	versions, err = service.ListVersions(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	safety := versions[0]
	if safety.Content != "current" {
		t.Fatalf("expected safety snapshot of %q, got %q", "current", safety.Content)
	}

	restored, err := service.Revert(context.Background(), doc.ID, safety.ID, "owner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.Content != "current" {
		t.Fatalf("expected round-trip to restore %q, got %q", "current", restored.Content)
	}
}

func TestRevertRejectsForeignVersion(t *testing.T) {
	service, _ := newTestService(t)

	first, err := service.Create(context.Background(), "owner", "First")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Create(context.Background(), "owner", "Second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Save(context.Background(), second.ID, "other", "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	versions, err := service.ListVersions(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Revert(context.Background(), first.ID, versions[0].ID, "owner"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected version not found for foreign version, got %v", err)
	}
	if _, err := service.Revert(context.Background(), first.ID, "missing", "owner"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected version not found, got %v", err)
	}
}

func TestListForUserIncludesCollaborations(t *testing.T) {
	service, _ := newTestService(t)

	mine, err := service.Create(context.Background(), "me", "Mine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shared, err := service.Create(context.Background(), "other", "Shared")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Create(context.Background(), "other", "Private"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.AddCollaborator(context.Background(), shared.ID, "me"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs, err := service.ListForUser(context.Background(), "me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	seen := map[string]bool{}
	for _, doc := range docs {
		seen[doc.ID] = true
	}
	if !seen[mine.ID] || !seen[shared.ID] {
		t.Fatalf("expected owned and shared documents, got %v", seen)
	}
}

func TestIDGenerationFailureSurfacesServiceError(t *testing.T) {
	db := newTestDB(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &staticIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	_, err = service.Create(context.Background(), "owner", "Notes")
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Code() != "documents.create.id_generation_failed" {
		t.Fatalf("unexpected code: %q", serviceErr.Code())
	}
}
