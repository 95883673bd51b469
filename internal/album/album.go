// Package album defines the album record and decodes the positional payload
// returned by the albums endpoint.
package album

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse reports a payload that does not decode into album records.
var ErrMalformedResponse = errors.New("malformed response")

// Album is a single rendered entry. The wire form is a positional triple
// of title, link and thumbnail URL.
type Album struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Field positions inside a wire record.
const (
	titleIndex = iota
	linkIndex
	thumbnailIndex
)

// Decode parses a payload into albums, preserving source order.
//
// The payload is either a JSON array of records or a JSON string holding
// that array as text; the endpoint usually sends the latter. Records shorter
// than three fields leave the missing values empty and extra fields are
// ignored.
func Decode(payload []byte) ([]Album, error) {
	data := bytes.TrimSpace(payload)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, fmt.Errorf("%w: decode payload text: %v", ErrMalformedResponse, err)
		}
		data = bytes.TrimSpace([]byte(text))
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode records: %v", ErrMalformedResponse, err)
	}
	if rows == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrMalformedResponse)
	}

	albums := make([]Album, 0, len(rows))
	for i, row := range rows {
		a, err := decodeRecord(row)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedResponse, i, err)
		}
		albums = append(albums, a)
	}
	return albums, nil
}

func decodeRecord(row json.RawMessage) (Album, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return Album{}, fmt.Errorf("record is not an array: %w", err)
	}
	var (
		a   Album
		err error
	)
	if a.Title, err = fieldAt(fields, titleIndex); err != nil {
		return Album{}, fmt.Errorf("title: %w", err)
	}
	if a.Link, err = fieldAt(fields, linkIndex); err != nil {
		return Album{}, fmt.Errorf("link: %w", err)
	}
	if a.ThumbnailURL, err = fieldAt(fields, thumbnailIndex); err != nil {
		return Album{}, fmt.Errorf("thumbnail: %w", err)
	}
	return a, nil
}

// fieldAt returns the textual value at idx. Absent and null fields are empty;
// numbers and booleans keep their JSON spelling.
func fieldAt(fields []json.RawMessage, idx int) (string, error) {
	if idx >= len(fields) {
		return "", nil
	}
	raw := bytes.TrimSpace(fields[idx])
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode string: %w", err)
		}
		return s, nil
	case 'n':
		return "", nil
	case '{', '[':
		return "", errors.New("nested value")
	default:
		return string(raw), nil
	}
}
