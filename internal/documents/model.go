package documents

import "time"

const defaultTitle = "Untitled Document"

// Document models a persisted document. Content is an opaque text blob
// replaced wholesale on every save; it is the single source of truth
// for what a newly joining collaborator sees.
type Document struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Title     string    `gorm:"column:title;size:200;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Collaborators is populated by the service from the join table.
	Collaborators []string `gorm:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Collaborator links a user to a document they may edit.
type Collaborator struct {
	DocumentID string    `gorm:"column:document_id;primaryKey;size:190;not null;index"`
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	AddedAt    time.Time `gorm:"column:added_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "document_collaborators"
}

// Version is an immutable snapshot of document content at a point in
// time. Versions are append-only: they are never updated or deleted.
type Version struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID string    `gorm:"column:document_id;size:190;not null;index:idx_versions_doc_created,priority:1"`
	Content    string    `gorm:"column:content;type:text;not null"`
	SavedBy    string    `gorm:"column:saved_by;size:190;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_versions_doc_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "document_versions"
}
