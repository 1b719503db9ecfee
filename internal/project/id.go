package project

import (
	"strings"

	"github.com/google/uuid"
)

// ValidID reports whether id can name a project directory. Ids are directory
// names under the repository base directory, so separators and dot-names are
// rejected.
func ValidID(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

// NewBuildID generates a unique id for one computed record using UUID v4
func NewBuildID() string {
	return uuid.New().String()
}
