// ABOUTME: Tests for request parsing, action metadata and response writing
// ABOUTME: Covers quit detection, native envelopes, the HTTP subset and wire output

package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/service"
)

func TestParse_Quit(t *testing.T) {
	for _, line := range []string{"quit", "QUIT\r\n", "  Quit  "} {
		req, err := Parse(line)
		require.NoError(t, err, line)
		assert.True(t, req.IsQuit())
		assert.False(t, req.IsHTTP())
	}

	req, err := Parse(`{"protocol":"HDP","action":"QUIT"}`)
	require.NoError(t, err)
	assert.True(t, req.IsQuit())
}

func TestParse_Native(t *testing.T) {
	req, err := Parse(`{"protocol":"HDP","account_name":"admin","account_password":"admin","account_privileges":3,"action":"GET_USERIDS"}` + "\n")
	require.NoError(t, err)

	assert.Equal(t, ProtocolNative, req.Protocol)
	assert.Equal(t, ActionGetUserIDs, req.Action)
	assert.Equal(t, "admin", req.AccountName)
	assert.Equal(t, auth.Access|auth.Update, req.AccountPrivileges)
	assert.True(t, req.HasCredentials())
}

func TestParse_NativeActionIsCaseInsensitive(t *testing.T) {
	req, err := Parse(`{"action":"update-rating","userid":4,"rating":{"id":4,"ratings":{"10":5}}}`)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdateRating, req.Action)
	assert.Equal(t, 5.0, req.Rating.Ratings[10])
}

func TestParse_NativeErrors(t *testing.T) {
	_, err := Parse(`{"protocol":"HDP",`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse(`{"protocol":"XYZ","action":"GET_USERIDS"}`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse(`{"action":"LAUNCH_ROCKETS"}`)
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = Parse(`{"action":"READ_FILE"}`)
	assert.ErrorIs(t, err, ErrUnknownAction, "read-file is HTTP only")
}

func TestParse_HTTPAction(t *testing.T) {
	req, err := Parse("GET /recommend?userid=7&max=3 HTTP/1.1")
	require.NoError(t, err)

	assert.True(t, req.IsHTTP())
	assert.Equal(t, ActionRecommend, req.Action)
	assert.Equal(t, 7, req.UserID)
	assert.Equal(t, 3, req.MaxRecommend)
}

func TestParse_HTTPAliasesAndLists(t *testing.T) {
	req, err := Parse("get /userids HTTP/1.0")
	require.NoError(t, err)
	assert.Equal(t, ActionGetUserIDs, req.Action)

	req, err = Parse("GET /estimate?userid=1&itemids=3,4,%205&format=HTML HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, ActionEstimate, req.Action)
	assert.Equal(t, []int{3, 4, 5}, req.ItemIDs)
	assert.Equal(t, "html", req.Format)

	req, err = Parse("GET /get-user-profile-by-external-id?externalid=abc HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, ActionGetUserProfileByExternalID, req.Action)
	assert.Equal(t, "abc", req.ExternalID)
}

func TestParse_HTTPFiles(t *testing.T) {
	cases := []struct {
		line     string
		path     string
		fileType string
	}{
		{"GET / HTTP/1.1", "/index.html", "text/html; charset=utf-8"},
		{"GET", "/index.html", "text/html; charset=utf-8"},
		{"GET /css/site.CSS HTTP/1.1", "/css/site.CSS", "text/css; charset=utf-8"},
		{"GET /no-such-action HTTP/1.1", "/no-such-action", "application/octet-stream"},
	}
	for _, tc := range cases {
		req, err := Parse(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, ActionReadFile, req.Action, tc.line)
		assert.Equal(t, tc.path, req.Path, tc.line)
		assert.Equal(t, tc.fileType, req.FileType, tc.line)
	}
}

func TestParse_HTTPErrors(t *testing.T) {
	req, err := Parse("POST /recommend HTTP/1.1")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	require.NotNil(t, req)
	assert.True(t, req.IsHTTP())
	assert.Equal(t, "POST", req.Method)

	req, err = Parse("GET /recommend?userid=seven HTTP/1.1")
	assert.ErrorIs(t, err, ErrBadQuery)
	assert.True(t, req.IsHTTP())
}

func TestActionMetadata(t *testing.T) {
	assert.True(t, ActionGetUserIDs.ReadOnly())
	assert.False(t, ActionUpdateRating.ReadOnly())
	assert.Equal(t, auth.Access, ActionRecommend.Privilege())
	assert.Equal(t, auth.Update, ActionDeleteNominal.Privilege())
	assert.Equal(t, auth.Admin, ActionGetStatus.Privilege())
	assert.False(t, Action("NOPE").Valid())
	assert.Len(t, Actions(), 27)
}

func TestWriteNative(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNative(&buf, nil))
	assert.Equal(t, "{}\n", buf.String())

	buf.Reset()
	resp := NewResponse(&Request{Action: ActionGetUserIDs})
	resp.IDs = []int{1, 2, 3}
	require.NoError(t, WriteNative(&buf, resp))
	assert.Equal(t, `{"protocol":"HDP","action":"GET_USERIDS","ids":[1,2,3]}`+"\n", buf.String())
}

func TestResponsePayload(t *testing.T) {
	assert.Nil(t, Empty().Payload())
	assert.True(t, Empty().IsEmpty())

	resp := NewResponse(&Request{Action: ActionGetUserRating})
	resp.Rating = &service.RatingVector{ID: 1}
	assert.Equal(t, resp.Rating, resp.Payload())

	ok := NewResponse(&Request{Action: ActionUpdateRating}).WithOK(true)
	assert.Equal(t, map[string]bool{"ok": true}, ok.Payload())
}

func TestWriteHTTP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTTP(&buf, &HTTPResponse{Status: 200, ContentType: "application/json", Body: []byte(`[1,2]`)}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Type: application/json\r\n")
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.Contains(t, out, "Connection: close\r\n\r\n[1,2]")

	buf.Reset()
	require.NoError(t, WriteHTTP(&buf, HTTPError(501, "")))
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 501 Not Implemented\r\n"))
}
