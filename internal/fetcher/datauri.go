package fetcher

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errMalformedDataURI = errors.New("malformed data uri")

// decodeDataURI parses data:[<mediatype>][;base64],<data> and returns the
// payload together with its media type (lower-cased, parameters stripped).
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		rest, ok = strings.CutPrefix(uri, "DATA:")
	}
	if !ok {
		return nil, "", errMalformedDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errMalformedDataURI
	}

	isBase64 := false
	params := strings.Split(meta, ";")
	mediaType := strings.ToLower(strings.TrimSpace(params[0]))
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		// tolerate whitespace and missing padding
		payload = strings.Join(strings.Fields(payload), "")
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", errMalformedDataURI, err)
		}
		return data, mediaType, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errMalformedDataURI, err)
	}
	return []byte(decoded), mediaType, nil
}
