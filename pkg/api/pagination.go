package api

import (
	"encoding/base64"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CursorRequest represents cursor-based pagination parameters. The cursor is
// opaque to clients; an empty cursor starts from the beginning.
type CursorRequest struct {
	Cursor string `form:"cursor" json:"cursor"`
	Limit  int64  `form:"limit" json:"limit"`
}

// DefaultCursorRequest returns a CursorRequest with default values
func DefaultCursorRequest() CursorRequest {
	return CursorRequest{Limit: 20}
}

// CursorPage represents one page of a cursor-paginated listing. NextCursor
// is empty when the listing is exhausted.
type CursorPage[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// NewCursorPage creates a page response
func NewCursorPage[T any](data []T, nextCursor string) CursorPage[T] {
	return CursorPage[T]{
		Data:       data,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}
}

// ParseCursor parses cursor pagination parameters from the Gin context,
// clamping the limit to [1, 100].
func ParseCursor(c *gin.Context) CursorRequest {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return CursorRequest{
		Cursor: c.Query("cursor"),
		Limit:  limit,
	}
}

// EncodeCursor wraps a boundary key into an opaque cursor token.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor unwraps an opaque cursor token back into the boundary key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	key, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(key), nil
}
