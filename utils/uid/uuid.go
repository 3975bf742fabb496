package uid

import (
	"encoding/base64"

	uuid "github.com/satori/go.uuid"
)

// NewId returns a url-safe random id for a subscriber.
func NewId() string {
	id := uuid.NewV4()
	b64 := base64.URLEncoding.EncodeToString(id.Bytes()[:12])
	return b64
}
