package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

const batchBody = `--batch_it
Content-Type: multipart/mixed; boundary=changeset_it

--changeset_it
Content-Type: application/http
Content-ID: 1

POST Categories HTTP/1.1
Content-Type: application/json

{"ID":300,"Name":"Beverages"}
--changeset_it
Content-Type: application/http
Content-ID: 2

PATCH $1 HTTP/1.1
Content-Type: application/json

{"Name":"Drinks"}
--changeset_it--

--batch_it
Content-Type: application/http
Content-Transfer-Encoding: binary

GET Categories(300) HTTP/1.1
Accept: application/json


--batch_it--
`

func TestBatchOverHTTP(t *testing.T) {
	resp := do(t, http.MethodPost, testEnv.ServiceURL("/$batch"), keyAdmin, crlf(batchBody),
		"Content-Type", "multipart/mixed;boundary=batch_it")
	body := expectStatus(t, resp, http.StatusOK)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/mixed") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, "201 Created") {
		t.Errorf("batch response lacks the create result: %s", body)
	}
	if !strings.Contains(body, `"Drinks"`) {
		t.Errorf("read after change set does not see the patch: %s", body)
	}

	read := expectStatus(t, do(t, http.MethodGet, testEnv.ServiceURL("/Categories(300)"), keyAdmin, ""), http.StatusOK)
	if got := gjson.Get(read, "Name").String(); got != "Drinks" {
		t.Errorf("Name = %q after batch", got)
	}
}

func TestBatchRequiresWriteScope(t *testing.T) {
	resp := do(t, http.MethodPost, testEnv.ServiceURL("/$batch"), keyReader, crlf(batchBody),
		"Content-Type", "multipart/mixed;boundary=batch_it")
	expectStatus(t, resp, http.StatusForbidden)
}
