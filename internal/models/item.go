// Package models defines the vault's persisted data types: items, keys,
// share links, queued operations and audit entries.
package models

import (
	"strings"
	"time"
)

// ItemType distinguishes files from folders.
type ItemType string

const (
	ItemTypeFile   ItemType = "file"
	ItemTypeFolder ItemType = "folder"
)

// FileType is a coarse classification derived from the MIME type, used by
// listings and by the storage routing policy.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeOther    FileType = "other"
)

// FileTypeFromMime maps a MIME type to its FileType bucket.
func FileTypeFromMime(mimeType string) FileType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return FileTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return FileTypeAudio
	case strings.HasPrefix(mimeType, "text/"),
		mimeType == "application/pdf",
		mimeType == "application/msword",
		strings.HasPrefix(mimeType, "application/vnd.openxmlformats-officedocument"):
		return FileTypeDocument
	default:
		return FileTypeOther
	}
}

// ScanStatus reflects the external malware scanner's verdict. The vault only
// consumes it; quarantined items refuse download and sharing.
type ScanStatus string

const (
	ScanStatusPending     ScanStatus = "pending"
	ScanStatusClean       ScanStatus = "clean"
	ScanStatusQuarantined ScanStatus = "quarantined"
)

// AccessLevel is the permission granted to a share grantee.
type AccessLevel string

const (
	AccessLevelView AccessLevel = "view"
	AccessLevelEdit AccessLevel = "edit"
)

// Grantee references a user an item has been shared with.
type Grantee struct {
	UserID      string      `json:"user_id"`
	AccessLevel AccessLevel `json:"access_level"`
}

// EncryptionMetadata records how an item's bytes were sealed: the AEAD
// nonce, the algorithm tag and the key version the wrapped per-file key
// belongs to.
type EncryptionMetadata struct {
	Nonce      []byte `json:"nonce"`
	Algorithm  string `json:"algorithm"`
	KeyVersion int64  `json:"key_version"`
}

// VaultItem is a file or folder node in the user's encrypted tree.
//
// Every item has exactly one ParentID chain terminating at the root
// (ParentID == "" means root); a folder can never be its own ancestor.
// Soft-deleted items are excluded from default listings but retained for a
// recovery window.
type VaultItem struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"owner_id"`
	ParentID string   `json:"parent_id"`
	Type     ItemType `json:"type"`
	Name     string   `json:"name"`

	// File-only fields.
	FileType FileType `json:"file_type,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	Size     int64    `json:"size,omitempty"`

	// Location of the encrypted bytes.
	StorageProvider string `json:"storage_provider,omitempty"`
	StoragePointer  string `json:"storage_pointer,omitempty"`

	// Encryption state.
	IsEncrypted        bool               `json:"is_encrypted"`
	EncryptionKeyID    string             `json:"encryption_key_id,omitempty"`
	EncryptionMetadata EncryptionMetadata `json:"encryption_metadata,omitempty"`
	// WrappedFileKey is the per-file key sealed under the key-encryption key.
	WrappedFileKey []byte `json:"wrapped_file_key,omitempty"`
	KeyNonce       []byte `json:"key_nonce,omitempty"`

	// Caller-supplied metadata, sealed under the per-file key. Never stored
	// or synced in the clear.
	EncryptedMetadata []byte `json:"encrypted_metadata,omitempty"`
	MetadataNonce     []byte `json:"metadata_nonce,omitempty"`

	// Sharing.
	SharedWith  []Grantee   `json:"shared_with,omitempty"`
	AccessLevel AccessLevel `json:"access_level,omitempty"`

	// Lifecycle.
	ScanStatus ScanStatus `json:"scan_status,omitempty"`
	IsDeleted  bool       `json:"is_deleted"`
	DeletedAt  time.Time  `json:"deleted_at,omitempty"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsFolder reports whether the item is a folder node.
func (i *VaultItem) IsFolder() bool { return i.Type == ItemTypeFolder }
