package format

import (
	"fmt"
	"mime"
	"sort"
	"strings"
)

// Well-known media types.
const (
	MediaJSON        = "application/json"
	MediaXML         = "application/xml"
	MediaText        = "text/plain"
	MediaOctetStream = "application/octet-stream"
	MediaMultipart   = "multipart/mixed"
	MediaHTTP        = "application/http"
)

// Content-type parameters.
const (
	ParamMetadata   = "odata.metadata"
	ParamStreaming  = "odata.streaming"
	ParamIEEE754    = "ieee754compatible"
	ParamCharset    = "charset"
	ParamBoundary   = "boundary"
	MetadataMinimal = "minimal"
	MetadataFull    = "full"
	MetadataNone    = "none"
)

// ContentType is a parsed media type with lower-cased parameter names.
type ContentType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

// JSON is application/json;odata.metadata=minimal.
var JSON = ContentType{Type: "application", Subtype: "json", Params: map[string]string{ParamMetadata: MetadataMinimal}}

// ParseContentType parses a Content-Type header value.
func ParseContentType(s string) (ContentType, error) {
	mt, params, err := mime.ParseMediaType(s)
	if err != nil {
		return ContentType{}, fmt.Errorf("invalid content type %q: %w", s, err)
	}
	typ, sub, ok := strings.Cut(mt, "/")
	if !ok || typ == "" || sub == "" {
		return ContentType{}, fmt.Errorf("invalid content type %q", s)
	}
	ct := ContentType{Type: typ, Subtype: sub}
	if len(params) > 0 {
		ct.Params = make(map[string]string, len(params))
		for k, v := range params {
			ct.Params[strings.ToLower(k)] = v
		}
	}
	return ct, nil
}

// MustParse is like ParseContentType but panics on malformed input.
func MustParse(s string) ContentType {
	ct, err := ParseContentType(s)
	if err != nil {
		panic(err)
	}
	return ct
}

// MediaType returns type/subtype without parameters.
func (c ContentType) MediaType() string {
	return c.Type + "/" + c.Subtype
}

// Is reports whether c has the given type/subtype.
func (c ContentType) Is(mediaType string) bool {
	return strings.EqualFold(c.MediaType(), mediaType)
}

// Param returns a parameter value, or "".
func (c ContentType) Param(name string) string {
	return c.Params[strings.ToLower(name)]
}

// With returns a copy of c with the parameter set.
func (c ContentType) With(name, value string) ContentType {
	params := make(map[string]string, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	params[strings.ToLower(name)] = value
	c.Params = params
	return c
}

// MetadataLevel returns the odata.metadata level of a JSON content type,
// minimal when unset.
func (c ContentType) MetadataLevel() string {
	if v := c.Param(ParamMetadata); v != "" {
		return strings.ToLower(v)
	}
	return MetadataMinimal
}

// IsZero reports whether c is unset.
func (c ContentType) IsZero() bool {
	return c.Type == "" && c.Subtype == ""
}

// String renders the content type with parameters in sorted order.
func (c ContentType) String() string {
	if c.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString(c.MediaType())
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(';')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.Params[k])
	}
	return b.String()
}
