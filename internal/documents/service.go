package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDocumentNotFound indicates the document does not exist.
	ErrDocumentNotFound = errors.New("documents: document not found")
	// ErrVersionNotFound indicates the version does not exist or belongs
	// to a different document.
	ErrVersionNotFound = errors.New("documents: version not found")
	// ErrAccessDenied indicates the user is neither owner nor collaborator.
	ErrAccessDenied = errors.New("documents: access denied")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")

	noOpLogger = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "documents.service.new"
	opCreate       = "documents.create"
	opList         = "documents.list"
	opGet          = "documents.get"
	opAddCollab    = "documents.add_collaborator"
	opListVersions = "documents.list_versions"
	opSave         = "documents.save"
	opRevert       = "documents.revert"
	opContent      = "documents.content"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for documents and versions.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the document service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns all durable document and version state. Saves and
// reverts funnel through it; the realtime layer never touches the
// store directly.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the document service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create stores a new empty document. The owner is always the first collaborator.
func (s *Service) Create(ctx context.Context, ownerID, title string) (Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Document{}, newServiceError(opCreate, "missing_owner", errMissingUserID)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Document{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	doc := Document{
		ID:      id,
		Title:   title,
		Content: "",
		OwnerID: ownerID,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		return tx.Create(&Collaborator{DocumentID: id, UserID: ownerID}).Error
	})
	if txErr != nil {
		s.logError(opCreate, "insert_failed", txErr, zap.String("owner_id", ownerID))
		return Document{}, newServiceError(opCreate, "insert_failed", txErr)
	}

	doc.Collaborators = []string{ownerID}
	return doc, nil
}

// ListForUser returns every document the user owns or collaborates on,
// most recently updated first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newServiceError(opList, "missing_user_id", errMissingUserID)
	}

	var docs []Document
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)",
			userID,
			s.db.Model(&Collaborator{}).Select("document_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Find(&docs).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opList, "query_failed", err)
	}

	for i := range docs {
		collaborators, err := s.collaboratorIDs(ctx, docs[i].ID)
		if err != nil {
			s.logError(opList, "collaborator_query_failed", err, zap.String("document_id", docs[i].ID))
			return nil, newServiceError(opList, "collaborator_query_failed", err)
		}
		docs[i].Collaborators = collaborators
	}

	return docs, nil
}

// Get returns the document when the user is its owner or a collaborator.
func (s *Service) Get(ctx context.Context, documentID, userID string) (Document, error) {
	doc, err := s.load(ctx, opGet, documentID)
	if err != nil {
		return Document{}, err
	}

	if doc.OwnerID != userID && !contains(doc.Collaborators, userID) {
		return Document{}, ErrAccessDenied
	}

	return doc, nil
}

// AddCollaborator records the user as a collaborator on the document.
// Adding an existing collaborator is a no-op.
func (s *Service) AddCollaborator(ctx context.Context, documentID, userID string) (Document, error) {
	doc, err := s.load(ctx, opAddCollab, documentID)
	if err != nil {
		return Document{}, err
	}

	if !contains(doc.Collaborators, userID) {
		record := Collaborator{DocumentID: documentID, UserID: userID}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			s.logError(opAddCollab, "insert_failed", err,
				zap.String("document_id", documentID),
				zap.String("user_id", userID))
			return Document{}, newServiceError(opAddCollab, "insert_failed", err)
		}
		doc.Collaborators = append(doc.Collaborators, userID)
	}

	return doc, nil
}

// ListVersions returns all version snapshots for a document, newest first.
func (s *Service) ListVersions(ctx context.Context, documentID string) ([]Version, error) {
	var versions []Version
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC, id DESC").
		Find(&versions).Error
	if err != nil {
		s.logError(opListVersions, "query_failed", err, zap.String("document_id", documentID))
		return nil, newServiceError(opListVersions, "query_failed", err)
	}
	return versions, nil
}

// Save writes the content into the document and appends exactly one
// version snapshot of it. Identical consecutive saves are not
// deduplicated: each call produces a new version.
func (s *Service) Save(ctx context.Context, documentID, content, savedBy string) error {
	versionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSave, "id_generation_failed", err, zap.String("document_id", documentID))
		return newServiceError(opSave, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Document{}).
			Where("id = ?", documentID).
			Updates(map[string]interface{}{"content": content, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDocumentNotFound
		}
		version := Version{
			ID:         versionID,
			DocumentID: documentID,
			Content:    content,
			SavedBy:    savedBy,
			CreatedAt:  now,
		}
		return tx.Create(&version).Error
	})
	if errors.Is(txErr, ErrDocumentNotFound) {
		return ErrDocumentNotFound
	}
	if txErr != nil {
		s.logError(opSave, "write_failed", txErr,
			zap.String("document_id", documentID),
			zap.String("saved_by", savedBy))
		return newServiceError(opSave, "write_failed", txErr)
	}

	return nil
}

// Revert restores the document to the target version's content. The
// pre-revert content is snapshotted as a new version before anything is
// overwritten, so every historical state stays recoverable and a revert
// is itself revertible.
func (s *Service) Revert(ctx context.Context, documentID, versionID, actingUserID string) (Document, error) {
	snapshotID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRevert, "id_generation_failed", err, zap.String("document_id", documentID))
		return Document{}, newServiceError(opRevert, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	var reverted Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target Version
		err := tx.Where("id = ?", versionID).Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}
		if target.DocumentID != documentID {
			return ErrVersionNotFound
		}

		var doc Document
		err = tx.Where("id = ?", documentID).Take(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return err
		}

		// Safety snapshot first: if the content update below fails, the
		// pre-revert state has already been captured.
		snapshot := Version{
			ID:         snapshotID,
			DocumentID: documentID,
			Content:    doc.Content,
			SavedBy:    actingUserID,
			CreatedAt:  now,
		}
		if err := tx.Create(&snapshot).Error; err != nil {
			return err
		}

		if err := tx.Model(&Document{}).
			Where("id = ?", documentID).
			Updates(map[string]interface{}{"content": target.Content, "updated_at": now}).Error; err != nil {
			return err
		}

		doc.Content = target.Content
		doc.UpdatedAt = now
		reverted = doc
		return nil
	})
	if errors.Is(txErr, ErrVersionNotFound) || errors.Is(txErr, ErrDocumentNotFound) {
		return Document{}, txErr
	}
	if txErr != nil {
		s.logError(opRevert, "write_failed", txErr,
			zap.String("document_id", documentID),
			zap.String("version_id", versionID))
		return Document{}, newServiceError(opRevert, "write_failed", txErr)
	}

	collaborators, err := s.collaboratorIDs(ctx, documentID)
	if err != nil {
		s.logError(opRevert, "collaborator_query_failed", err, zap.String("document_id", documentID))
		return Document{}, newServiceError(opRevert, "collaborator_query_failed", err)
	}
	reverted.Collaborators = collaborators

	return reverted, nil
}

// Content returns the document's current content. Used by the join
// protocol's point read.
func (s *Service) Content(ctx context.Context, documentID string) (string, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("id", "content").Where("id = ?", documentID).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		s.logError(opContent, "query_failed", err, zap.String("document_id", documentID))
		return "", newServiceError(opContent, "query_failed", err)
	}
	return doc.Content, nil
}

func (s *Service) load(ctx context.Context, operation, documentID string) (Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", documentID).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("document_id", documentID))
		return Document{}, newServiceError(operation, "query_failed", err)
	}

	collaborators, err := s.collaboratorIDs(ctx, documentID)
	if err != nil {
		s.logError(operation, "collaborator_query_failed", err, zap.String("document_id", documentID))
		return Document{}, newServiceError(operation, "collaborator_query_failed", err)
	}
	doc.Collaborators = collaborators

	return doc, nil
}

func (s *Service) collaboratorIDs(ctx context.Context, documentID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Collaborator{}).
		Where("document_id = ?", documentID).
		Order("added_at ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("document service error", attrs...)
}
