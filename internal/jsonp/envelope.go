package jsonp

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"regexp"
)

var (
	// ErrNoInvocation reports a body that does not invoke any callback.
	ErrNoInvocation = errors.New("jsonp: response does not invoke a callback")
	// ErrStaleCallback reports a body that invokes a callback other than the call's own.
	ErrStaleCallback = errors.New("jsonp: response invokes a different callback")
)

var callbackIdent = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// Unwrap extracts the callback argument from a script body of the form
// `id(<json>);`. Leading `/**/` comments and `typeof id === 'function' &&`
// guards emitted by common servers are accepted.
func Unwrap(body []byte, callbackID string) ([]byte, error) {
	s := bytes.TrimSpace(body)
	s = bytes.TrimSpace(bytes.TrimPrefix(s, []byte("/**/")))
	if bytes.HasPrefix(s, []byte("typeof ")) {
		guard := bytes.Index(s, []byte("&&"))
		if guard < 0 {
			return nil, ErrNoInvocation
		}
		s = bytes.TrimSpace(s[guard+2:])
	}

	open := bytes.IndexByte(s, '(')
	if open <= 0 {
		return nil, ErrNoInvocation
	}
	name := string(bytes.TrimSpace(s[:open]))
	if !callbackIdent.MatchString(name) {
		return nil, ErrNoInvocation
	}

	rest := bytes.TrimSpace(s[open+1:])
	rest = bytes.TrimSpace(bytes.TrimSuffix(rest, []byte(";")))
	if !bytes.HasSuffix(rest, []byte(")")) {
		return nil, ErrNoInvocation
	}
	if name != callbackID {
		return nil, fmt.Errorf("%w: got %q", ErrStaleCallback, name)
	}
	return bytes.TrimSpace(rest[:len(rest)-1]), nil
}

// extractPayload returns the payload carried by resp. JSON responses are the
// payload themselves; anything else must be an invocation of callbackID.
func extractPayload(resp Response, callbackID string) ([]byte, error) {
	if isJSON(resp.Headers.Get("Content-Type")) {
		return bytes.TrimSpace(resp.Body), nil
	}
	return Unwrap(resp.Body, callbackID)
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}
