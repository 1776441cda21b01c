// ABOUTME: Parses one client line into a Request
// ABOUTME: Detects the quit sentinel, the HTTP GET subset and native JSON envelopes

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Parse errors.
var (
	ErrMalformed         = errors.New("malformed request")
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
	ErrBadQuery          = errors.New("bad query parameter")
)

// QuitLine is the native quit sentinel.
const QuitLine = "quit"

// IndexFile is served for the root path.
const IndexFile = "index.html"

var requestLine = regexp.MustCompile(`^([A-Za-z]+) (\S+) HTTP/\d\.\d$`)

var fileTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// Parse turns one line (with or without its line terminator) into a request.
// For HTTP lines that cannot be served the request is still returned, tagged
// ProtocolHTTP, together with ErrUnsupportedMethod or ErrBadQuery so the caller
// can answer with the right status.
func Parse(line string) (*Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	if strings.EqualFold(line, QuitLine) {
		return &Request{Protocol: ProtocolNative, Action: ActionQuit}, nil
	}
	if len(line) >= 3 && strings.EqualFold(line[:3], "GET") && (len(line) == 3 || line[3] == ' ') {
		return parseHTTP(line)
	}
	if m := requestLine.FindStringSubmatch(line); m != nil {
		return &Request{Protocol: ProtocolHTTP, Method: strings.ToUpper(m[1]), Path: m[2]}, ErrUnsupportedMethod
	}
	return parseNative(line)
}

func parseNative(line string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Protocol == "" {
		req.Protocol = ProtocolNative
	}
	if !strings.EqualFold(req.Protocol, ProtocolNative) {
		return nil, fmt.Errorf("%w: protocol %q", ErrMalformed, req.Protocol)
	}
	req.Protocol = ProtocolNative

	action, ok := LookupAction(string(req.Action))
	if !ok || !action.Native() {
		return &req, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	req.Action = action
	return &req, nil
}

func parseHTTP(line string) (*Request, error) {
	fields := strings.Fields(line)
	req := &Request{Protocol: ProtocolHTTP, Method: "GET", Path: "/"}
	if len(fields) < 2 {
		req.Action = ActionReadFile
		req.Path = "/" + IndexFile
		req.FileType = fileTypes[".html"]
		return req, nil
	}

	u, err := url.ParseRequestURI(fields[1])
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}
	req.Path = u.Path

	name := strings.Trim(u.Path, "/")
	ext := strings.ToLower(path.Ext(name))
	switch {
	case name == "":
		req.Action = ActionReadFile
		req.Path = "/" + IndexFile
		ext = ".html"
	case ext != "":
		req.Action = ActionReadFile
	default:
		if a, ok := LookupAction(name); ok && a != ActionQuit {
			req.Action = a
		} else {
			req.Action = ActionReadFile
		}
	}
	if req.Action == ActionReadFile {
		req.FileType = FileType(ext)
	}

	if err := applyQuery(req, u.Query()); err != nil {
		return req, err
	}
	return req, nil
}

// FileType returns the content type for a file suffix such as ".css".
func FileType(ext string) string {
	if t, ok := fileTypes[strings.ToLower(ext)]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func applyQuery(req *Request, q url.Values) error {
	ints := []struct {
		dst   *int
		names []string
	}{
		{&req.UserID, []string{"userid", "user_id", "user"}},
		{&req.ItemID, []string{"itemid", "item_id", "item"}},
		{&req.MaxRecommend, []string{"max", "max_recommend"}},
		{&req.Index, []string{"index"}},
	}
	for _, f := range ints {
		raw := first(q, f.names...)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrBadQuery, f.names[0], raw)
		}
		*f.dst = n
	}

	if raw := first(q, "itemids", "item_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("%w: itemids=%q", ErrBadQuery, raw)
			}
			req.ItemIDs = append(req.ItemIDs, n)
		}
	}

	req.ExternalID = first(q, "externalid", "external_id")
	req.Attribute = first(q, "attribute")
	req.Format = strings.ToLower(first(q, "format"))
	return nil
}

func first(q url.Values, names ...string) string {
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}
