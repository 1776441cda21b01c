// ABOUTME: Minimal HTTP/1.1 response writer for the GET subset
// ABOUTME: Every response carries Content-Type, Content-Length and Connection: close

package protocol

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// HTTPResponse is one HTTP-subset reply.
type HTTPResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// HTTPError builds a plain-text error response for status.
func HTTPError(status int, detail string) *HTTPResponse {
	body := strconv.Itoa(status) + " " + http.StatusText(status)
	if detail != "" {
		body += ": " + detail
	}
	return &HTTPResponse{Status: status, ContentType: "text/plain; charset=utf-8", Body: []byte(body + "\n")}
}

// WriteHTTP writes resp as a complete HTTP/1.1 message.
func WriteHTTP(w io.Writer, resp *HTTPResponse) error {
	bw := bufio.NewWriter(w)
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", resp.Status, http.StatusText(resp.Status))
	fmt.Fprintf(bw, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(bw, "Content-Length: %d\r\n", len(resp.Body))
	bw.WriteString("Connection: close\r\n\r\n")
	bw.Write(resp.Body)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing http response: %w", err)
	}
	return nil
}
