package serializer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/format"
)

// BatchRequest is one operation of a $batch payload.
type BatchRequest struct {
	Method string

	// Target is the request target as written: relative to the service
	// root ("Products(1)"), absolute-path ("/svc/Products"), absolute URL,
	// or a Content-ID reference ("$1/Category").
	Target string
	Header http.Header
	Body   []byte

	// ContentID is the part's Content-ID, empty when absent.
	ContentID string
}

// BatchPart is either a single operation or a changeset.
type BatchPart struct {
	Request   *BatchRequest
	ChangeSet []*BatchRequest
}

// IsChangeSet reports whether the part groups several operations.
func (p *BatchPart) IsChangeSet() bool { return p.Request == nil }

// BatchResponse is the outcome of one batch operation.
type BatchResponse struct {
	ContentID string
	Response  *api.Response
}

// BatchResponsePart mirrors BatchPart on the response side. A failed
// changeset is reported as a single Response.
type BatchResponsePart struct {
	Response  *BatchResponse
	ChangeSet []*BatchResponse
}

// ParseBatch splits a multipart/mixed $batch body into parts.
func ParseBatch(body []byte, boundary string) ([]*BatchPart, error) {
	if !api.ValidBoundary(boundary) {
		return nil, api.NewBatchDeserializationError(api.KeyInvalidBoundary, "invalid batch boundary "+boundary)
	}
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	var parts []*BatchPart
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, api.NewBatchDeserializationError(api.KeyMissingBoundaryDelimiter,
				fmt.Sprintf("reading batch part %d: %v", len(parts)+1, err))
		}
		ct, err := format.ParseContentType(p.Header.Get(api.HeaderContentType))
		if err != nil {
			return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart,
				fmt.Sprintf("batch part %d has no valid content type", len(parts)+1))
		}
		data, err := io.ReadAll(p)
		if err != nil {
			return nil, api.NewBatchDeserializationError(api.KeyIOError, err.Error())
		}

		switch {
		case ct.Is(format.MediaHTTP):
			req, err := parseHTTPRequest(data)
			if err != nil {
				return nil, err
			}
			req.ContentID = p.Header.Get(api.HeaderContentID)
			parts = append(parts, &BatchPart{Request: req})
		case ct.Is(format.MediaMultipart):
			cs, err := parseChangeSet(data, ct.Param(format.ParamBoundary))
			if err != nil {
				return nil, err
			}
			parts = append(parts, &BatchPart{ChangeSet: cs})
		default:
			return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart,
				"unsupported batch part content type "+ct.MediaType())
		}
	}
}

func parseChangeSet(body []byte, boundary string) ([]*BatchRequest, error) {
	if !api.ValidBoundary(boundary) {
		return nil, api.NewBatchDeserializationError(api.KeyInvalidBoundary, "invalid changeset boundary "+boundary)
	}
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	var reqs []*BatchRequest
	ids := make(map[string]bool)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return reqs, nil
		}
		if err != nil {
			return nil, api.NewBatchDeserializationError(api.KeyMissingBoundaryDelimiter,
				fmt.Sprintf("reading changeset part %d: %v", len(reqs)+1, err))
		}
		ct, err := format.ParseContentType(p.Header.Get(api.HeaderContentType))
		if err == nil && ct.Is(format.MediaMultipart) {
			return nil, api.NewBatchDeserializationError(api.KeyInvalidChangeSetNesting, "changesets must not be nested")
		}
		if err != nil || !ct.Is(format.MediaHTTP) {
			return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart,
				fmt.Sprintf("changeset part %d must be application/http", len(reqs)+1))
		}
		data, err := io.ReadAll(p)
		if err != nil {
			return nil, api.NewBatchDeserializationError(api.KeyIOError, err.Error())
		}
		req, err := parseHTTPRequest(data)
		if err != nil {
			return nil, err
		}
		if req.Method == http.MethodGet {
			return nil, api.NewBatchDeserializationError(api.KeyInvalidChangeSetMethod, "changesets must not contain GET requests")
		}
		req.ContentID = p.Header.Get(api.HeaderContentID)
		if req.ContentID != "" {
			if ids[req.ContentID] {
				return nil, api.NewBatchDeserializationError(api.KeyDuplicateContentID,
					"Content-ID "+req.ContentID+" used twice in a changeset")
			}
			ids[req.ContentID] = true
		}
		reqs = append(reqs, req)
	}
}

// parseHTTPRequest reads an embedded request: request line, headers, a
// blank line and the body.
func parseHTTPRequest(data []byte) (*BatchRequest, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	line, err := r.ReadLine()
	for err == nil && strings.TrimSpace(line) == "" {
		line, err = r.ReadLine()
	}
	if err != nil {
		return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "batch part carries no request line")
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "malformed request line "+line)
	}
	method := strings.ToUpper(fields[0])
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "unsupported method "+fields[0])
	}
	hdr, err := r.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "malformed part headers: "+err.Error())
	}
	body, err := io.ReadAll(r.R)
	if err != nil {
		return nil, api.NewBatchDeserializationError(api.KeyIOError, err.Error())
	}
	body = bytes.TrimSuffix(body, []byte("\r\n"))
	return &BatchRequest{
		Method: method,
		Target: fields[1],
		Header: http.Header(hdr),
		Body:   body,
	}, nil
}

// WriteBatch renders batch results as multipart/mixed and returns the body
// together with its boundary.
func WriteBatch(parts []*BatchResponsePart) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	boundary := api.NewBatchBoundary()
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, "", api.NewSerializationError(api.KeyIOError, "setting batch boundary", err)
	}
	for _, p := range parts {
		if p.Response != nil {
			if err := writeResponsePart(mw, p.Response); err != nil {
				return nil, "", err
			}
			continue
		}
		var inner bytes.Buffer
		cw := multipart.NewWriter(&inner)
		csBoundary := api.NewChangesetBoundary()
		if err := cw.SetBoundary(csBoundary); err != nil {
			return nil, "", api.NewSerializationError(api.KeyIOError, "setting changeset boundary", err)
		}
		for _, r := range p.ChangeSet {
			if err := writeResponsePart(cw, r); err != nil {
				return nil, "", err
			}
		}
		if err := cw.Close(); err != nil {
			return nil, "", api.NewSerializationError(api.KeyIOError, "closing changeset", err)
		}
		h := textproto.MIMEHeader{}
		h.Set(api.HeaderContentType, format.MediaMultipart+";"+format.ParamBoundary+"="+csBoundary)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", api.NewSerializationError(api.KeyIOError, "writing changeset part", err)
		}
		if _, err := w.Write(inner.Bytes()); err != nil {
			return nil, "", api.NewSerializationError(api.KeyIOError, "writing changeset part", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", api.NewSerializationError(api.KeyIOError, "closing batch", err)
	}
	return buf.Bytes(), boundary, nil
}

func writeResponsePart(mw *multipart.Writer, r *BatchResponse) error {
	h := textproto.MIMEHeader{}
	h.Set(api.HeaderContentType, format.MediaHTTP)
	h.Set("Content-Transfer-Encoding", "binary")
	if r.ContentID != "" {
		h.Set(api.HeaderContentID, r.ContentID)
	}
	w, err := mw.CreatePart(h)
	if err != nil {
		return api.NewSerializationError(api.KeyIOError, "writing batch part", err)
	}
	resp := r.Response
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	hdr := resp.Header.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	if len(resp.Body) > 0 {
		hdr.Set(api.HeaderContentLength, fmt.Sprint(len(resp.Body)))
	}
	if err := hdr.Write(&b); err != nil {
		return api.NewSerializationError(api.KeyIOError, "writing batch part headers", err)
	}
	b.WriteString("\r\n")
	b.Write(resp.Body)
	if _, err := w.Write(b.Bytes()); err != nil {
		return api.NewSerializationError(api.KeyIOError, "writing batch part", err)
	}
	return nil
}
