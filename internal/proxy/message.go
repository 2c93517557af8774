package proxy

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// DefaultMaxBodyBytes caps buffered request bodies. Requests larger than
// this are rejected with 413 instead of being forwarded.
const DefaultMaxBodyBytes int64 = 10 << 20

// RequestErrorKind classifies failures while reading a client request.
type RequestErrorKind int

const (
	// KindIncomplete marks a request cut off mid-headers or mid-line.
	KindIncomplete RequestErrorKind = iota
	// KindMalformed marks a request the parser rejected outright.
	KindMalformed
	// KindBodyTooLarge marks a body exceeding the configured cap.
	KindBodyTooLarge
	// KindInvalidContentLength marks an unparseable Content-Length header.
	KindInvalidContentLength
	// KindContentLengthMismatch marks a body shorter than its declared length.
	KindContentLengthMismatch
	// KindConnection marks a transport-level failure on the client socket.
	KindConnection
)

// RequestError wraps a request-read failure with its classification.
type RequestError struct {
	Kind RequestErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("read request: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Status maps the error to the response status surfaced to the client.
func (e *RequestError) Status() int {
	switch e.Kind {
	case KindBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// readRequest reads one client request off the buffered stream and buffers
// its body so framing defects surface here rather than mid-forward. A clean
// end of stream (no bytes read) returns io.EOF; every other failure returns
// a *RequestError.
func readRequest(br *bufio.Reader, maxBody int64) (*http.Request, error) {
	// A clean close is EOF before any request bytes. http.ReadRequest also
	// reports io.EOF for a request line truncated mid-way, so the
	// distinction has to be made before parsing starts.
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, classifyReadError(err)
	}

	req, err := http.ReadRequest(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &RequestError{Kind: KindIncomplete, Err: io.ErrUnexpectedEOF}
		}
		return nil, classifyReadError(err)
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBody+1))
	closeErr := req.Body.Close()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &RequestError{Kind: KindContentLengthMismatch, Err: err}
		}
		return nil, classifyReadError(err)
	}
	if closeErr != nil {
		return nil, classifyReadError(closeErr)
	}
	if int64(len(body)) > maxBody {
		return nil, &RequestError{Kind: KindBodyTooLarge, Err: fmt.Errorf("request body exceeds %d bytes", maxBody)}
	}
	if req.ContentLength > 0 && int64(len(body)) != req.ContentLength {
		return nil, &RequestError{
			Kind: KindContentLengthMismatch,
			Err:  fmt.Errorf("declared %d body bytes, read %d", req.ContentLength, len(body)),
		}
	}

	// Rebuffer with explicit length so the request can be written to the
	// upstream without re-chunking surprises.
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.TransferEncoding = nil
	return req, nil
}

// classifyReadError sorts parser and transport failures into the request
// error taxonomy. net/http does not expose typed parse errors, so header
// defects are recognized by message.
func classifyReadError(err error) *RequestError {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return &RequestError{Kind: KindConnection, Err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &RequestError{Kind: KindIncomplete, Err: err}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Content-Length"):
		return &RequestError{Kind: KindInvalidContentLength, Err: err}
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe"):
		return &RequestError{Kind: KindConnection, Err: err}
	default:
		return &RequestError{Kind: KindMalformed, Err: err}
	}
}

// newErrorResponse builds a minimal HTTP/1.1 response for the given status,
// with a short plain-text body naming the status.
func newErrorResponse(status int) *http.Response {
	body := fmt.Sprintf("%d %s\n", status, http.StatusText(status))
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// appendForwardedFor records the client's address on the request so the
// upstream can distinguish the true client from the proxy.
func appendForwardedFor(req *http.Request, clientIP string) {
	if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
		req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		return
	}
	req.Header.Set("X-Forwarded-For", clientIP)
}

// requestLine formats a request for log output.
func requestLine(req *http.Request) string {
	return fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto)
}
