// ABOUTME: HTTP GET subset served on the native port
// ABOUTME: Maps paths to read-only actions or to files under the web root

package delegator

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/metrics"
	"github.com/2389/recgate/internal/protocol"
	"github.com/2389/recgate/internal/service"
)

func (d *Delegator) serveHTTP(req *protocol.Request, parseErr error) {
	resp := d.httpResponse(req, parseErr)

	outcome := metrics.OutcomeOK
	switch {
	case resp.Status == http.StatusForbidden:
		outcome = metrics.OutcomeDenied
	case resp.Status == http.StatusBadRequest || resp.Status == http.StatusNotImplemented:
		outcome = metrics.OutcomeMalformed
	case resp.Status >= 400:
		outcome = metrics.OutcomeError
	}
	record(protocol.ProtocolHTTP, string(req.Action), outcome)
	d.logger.Info("http request", "method", req.Method, "path", req.Path, "status", resp.Status)

	if err := protocol.WriteHTTP(d.conn, resp); err != nil {
		d.logger.Debug("writing http response", "error", err)
	}
}

func (d *Delegator) httpResponse(req *protocol.Request, parseErr error) *protocol.HTTPResponse {
	switch {
	case errors.Is(parseErr, protocol.ErrUnsupportedMethod):
		return protocol.HTTPError(http.StatusNotImplemented, req.Method)
	case parseErr != nil:
		return protocol.HTTPError(http.StatusBadRequest, parseErr.Error())
	case req.Action == protocol.ActionReadFile:
		return d.readFile(req)
	case !req.Action.ReadOnly() || req.Action.Privilege().Has(auth.Admin):
		return protocol.HTTPError(http.StatusForbidden, string(req.Action))
	}
	if missing := missingParam(req); missing != "" {
		return protocol.HTTPError(http.StatusBadRequest, "missing "+missing)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.opts.BackendTimeout)
	defer cancel()

	svc, err := d.opts.Selector.Select(ctx)
	if err != nil {
		d.logger.Warn("no backend for http request", "action", req.Action, "error", err)
		return protocol.HTTPError(http.StatusInternalServerError, "backend unavailable")
	}
	resp, err := d.dispatch(ctx, svc, req)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return protocol.HTTPError(http.StatusNotFound, string(req.Action))
	case err != nil:
		d.logger.Warn("http dispatch failed", "action", req.Action, "error", err)
		return protocol.HTTPError(http.StatusInternalServerError, "dispatch failed")
	}

	if req.Format == "html" {
		body, err := renderHTML(resp)
		if err != nil {
			return protocol.HTTPError(http.StatusInternalServerError, "rendering failed")
		}
		return &protocol.HTTPResponse{Status: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: body}
	}
	body, err := json.Marshal(resp.Payload())
	if err != nil {
		return protocol.HTTPError(http.StatusInternalServerError, "encoding failed")
	}
	return &protocol.HTTPResponse{Status: http.StatusOK, ContentType: "application/json", Body: append(body, '\n')}
}

// missingParam names a query parameter the action cannot do without.
func missingParam(req *protocol.Request) string {
	switch req.Action {
	case protocol.ActionEstimate:
		if len(req.ItemIDs) == 0 {
			return "itemids"
		}
	case protocol.ActionGetUserProfileByExternalID, protocol.ActionGetItemProfileByExternalID:
		if req.ExternalID == "" {
			return "externalid"
		}
	case protocol.ActionGetNominal:
		if req.Attribute == "" {
			return "attribute"
		}
	}
	return ""
}

func (d *Delegator) readFile(req *protocol.Request) *protocol.HTTPResponse {
	for _, seg := range strings.Split(req.Path, "/") {
		if seg == ".." {
			return protocol.HTTPError(http.StatusForbidden, req.Path)
		}
	}
	name := strings.TrimPrefix(path.Clean("/"+req.Path), "/")
	if name == "" {
		name = protocol.IndexFile
	}

	root, err := os.OpenRoot(d.opts.WebRoot)
	if err != nil {
		d.logger.Warn("opening web root", "root", d.opts.WebRoot, "error", err)
		return protocol.HTTPError(http.StatusNotFound, req.Path)
	}
	defer root.Close()

	info, err := root.Stat(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return protocol.HTTPError(http.StatusNotFound, req.Path)
	case err != nil:
		d.logger.Warn("stat file", "path", name, "error", err)
		return protocol.HTTPError(http.StatusForbidden, req.Path)
	case info.IsDir():
		return protocol.HTTPError(http.StatusNotFound, req.Path)
	}

	body, err := root.ReadFile(name)
	if err != nil {
		d.logger.Warn("reading file", "path", name, "error", err)
		return protocol.HTTPError(http.StatusInternalServerError, req.Path)
	}
	contentType := req.FileType
	if contentType == "" {
		contentType = protocol.FileType(path.Ext(name))
	}
	return &protocol.HTTPResponse{Status: http.StatusOK, ContentType: contentType, Body: body}
}
