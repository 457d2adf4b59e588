package store

import (
	"path/filepath"
	"strings"
)

// Category tells whether a report concerns a lost or a found dog.
type Category string

const (
	CategoryLost  Category = "Lost"
	CategoryFound Category = "Found"
)

func (c Category) Valid() bool {
	return c == CategoryLost || c == CategoryFound
}

// supportedImageExtensions are the only formats the matching core considers.
// Anything else silently excludes the report from matching.
var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Report is a single lost or found dog posting.
type Report struct {
	ID        int32
	UID       string
	PetID     int32
	Category  Category
	OwnerID   int32
	Name      string // optional for found dogs
	Breed     string
	Size      string
	Gender    string
	Location  string
	Details   string
	ImagePath *string
	Reunited  bool
	Archived  bool
	CreatedTs int64
}

// EligibleForMatching reports whether this posting can enter a matching pass:
// it must carry an image in a supported format and must not be reunited.
func (r *Report) EligibleForMatching() bool {
	if r.Reunited || r.ImagePath == nil || *r.ImagePath == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(*r.ImagePath))
	return supportedImageExtensions[ext]
}

// FindReport is the filter for listing reports.
type FindReport struct {
	ID       *int32
	UID      *string
	PetID    *int32
	Category *Category
	OwnerID  *int32
	Reunited *bool
	Archived *bool
	Limit    *int
}

// UpdateReport is a partial update; nil fields are left unchanged.
type UpdateReport struct {
	PetID     int32
	Name      *string
	Breed     *string
	Size      *string
	Gender    *string
	Location  *string
	Details   *string
	ImagePath *string
	Archived  *bool
}

// DeleteReport identifies the report to remove.
type DeleteReport struct {
	PetID int32
}
