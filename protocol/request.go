package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"

	"feedback-relay/errors"

	"github.com/go-playground/validator/v10"
)

// Client to server frame types.
const (
	TypeRegister     = "register"
	TypeMessage      = "message"
	TypeFile         = "file"
	TypeDownloadFile = "download_file"
	TypeMarkRead     = "mark_read"
	TypePing         = "ping"
)

var validate = validator.New()

// Request is the flat key/value body of every client frame.
// Only the fields relevant to Type are populated.
type Request struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Content   string `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	Size      int64  `json:"size,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

type registration struct {
	Type     string `validate:"eq=register"`
	Username string `validate:"required"`
}

type upload struct {
	Name    string `validate:"required,max=255"`
	Content string `validate:"required"`
}

// ValidateRegister checks that the frame is a register request carrying a
// non-blank username and returns the trimmed username.
func ValidateRegister(req Request) (string, error) {
	username := strings.TrimSpace(req.Username)
	if err := validate.Struct(registration{Type: req.Type, Username: username}); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidRegistration, err)
	}
	return username, nil
}

// DecodeUpload validates a file frame and returns its display name and raw bytes.
func DecodeUpload(req Request) (string, []byte, error) {
	name := strings.TrimSpace(req.Name)
	if err := validate.Struct(upload{Name: name, Content: req.Content}); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errors.ErrInvalidFile, err)
	}
	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return "", nil, fmt.Errorf("%w: content is not base64: %v", errors.ErrInvalidFile, err)
	}
	return name, data, nil
}
