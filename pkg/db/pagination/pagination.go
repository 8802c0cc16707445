package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string
	PageSize  int
}

// Size clamps PageSize into [1, MaxPageSize], using DefaultPageSize when unset.
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

// Cursor points at the last row of a page ordered by created_at desc, id desc.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// Apply returns a scope that seeks past the page token and fetches one row
// more than the page size so BuildCursorPageInfo can report HasMore. The
// caller orders by created_at desc, id desc.
func Apply(page Pagination) (func(*gorm.DB) *gorm.DB, error) {
	size := page.Size()
	if page.PageToken == "" {
		return func(tx *gorm.DB) *gorm.DB { return tx.Limit(size + 1) }, nil
	}

	cursor, err := DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	createdAt = createdAt.UTC()

	return func(tx *gorm.DB) *gorm.DB {
		return tx.
			Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, id).
			Limit(size + 1)
	}, nil
}

// BuildCursorPageInfo trims data to limit and derives the next page token
// from the last kept row.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, PageInfo, error) {
	if len(data) <= limit {
		return data, PageInfo{}, nil
	}

	data = data[:limit]
	token, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return data, PageInfo{NextPageToken: token, HasMore: true}, nil
}
