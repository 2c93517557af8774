package proxy

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func readFrom(t *testing.T, raw string, maxBody int64) (*http.Request, error) {
	t.Helper()
	return readRequest(bufio.NewReader(strings.NewReader(raw)), maxBody)
}

func TestReadRequestParsesWellFormedRequest(t *testing.T) {
	raw := "POST /things HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	req, err := readFrom(t, raw, DefaultMaxBodyBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.Method)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", body)
	}
	if req.ContentLength != 5 {
		t.Fatalf("expected content length 5, got %d", req.ContentLength)
	}
}

func TestReadRequestCleanEOF(t *testing.T) {
	_, err := readFrom(t, "", DefaultMaxBodyBytes)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadRequestIncompleteHeaders(t *testing.T) {
	_, err := readFrom(t, "GET / HTTP/1.1\r\nHost: exa", DefaultMaxBodyBytes)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Kind != KindIncomplete {
		t.Fatalf("expected KindIncomplete, got %d", reqErr.Kind)
	}
	if reqErr.Status() != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", reqErr.Status())
	}
}

func TestReadRequestMalformedRequestLine(t *testing.T) {
	_, err := readFrom(t, "NOT A REQUEST LINE AT ALL\r\n\r\n", DefaultMaxBodyBytes)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Kind != KindMalformed {
		t.Fatalf("expected KindMalformed, got %d", reqErr.Kind)
	}
}

func TestReadRequestInvalidContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: banana\r\n\r\n"
	_, err := readFrom(t, raw, DefaultMaxBodyBytes)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Kind != KindInvalidContentLength {
		t.Fatalf("expected KindInvalidContentLength, got %d", reqErr.Kind)
	}
	if reqErr.Status() != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", reqErr.Status())
	}
}

func TestReadRequestBodyTooLarge(t *testing.T) {
	body := strings.Repeat("x", 32)
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 32\r\n\r\n" + body
	_, err := readFrom(t, raw, 16)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Kind != KindBodyTooLarge {
		t.Fatalf("expected KindBodyTooLarge, got %d", reqErr.Kind)
	}
	if reqErr.Status() != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", reqErr.Status())
	}
}

func TestReadRequestContentLengthMismatch(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\nhi"
	_, err := readFrom(t, raw, DefaultMaxBodyBytes)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Kind != KindContentLengthMismatch {
		t.Fatalf("expected KindContentLengthMismatch, got %d", reqErr.Kind)
	}
	if reqErr.Status() != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", reqErr.Status())
	}
}

func TestNewErrorResponseRoundTrips(t *testing.T) {
	resp := newErrorResponse(http.StatusBadGateway)

	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		t.Fatalf("failed to write response: %v", err)
	}

	parsed, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	if err != nil {
		t.Fatalf("failed to parse written response: %v", err)
	}
	defer parsed.Body.Close()
	if parsed.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", parsed.StatusCode)
	}
	body, _ := io.ReadAll(parsed.Body)
	if !strings.Contains(string(body), "502") {
		t.Fatalf("expected body to name the status, got %q", body)
	}
}

func TestAppendForwardedFor(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	appendForwardedFor(req, "10.0.0.1")
	if got := req.Header.Get("X-Forwarded-For"); got != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1, got %q", got)
	}

	appendForwardedFor(req, "10.0.0.2")
	if got := req.Header.Get("X-Forwarded-For"); got != "10.0.0.1, 10.0.0.2" {
		t.Fatalf("expected appended value, got %q", got)
	}
}
