// Package protocol parses client request lines and writes responses.
//
// Two wire formats share one TCP port. The native format is one JSON
// envelope per line:
//
//	{"protocol":"HDP","account_name":"admin","account_password":"admin","account_privileges":3,"action":"GET_USERIDS"}
//
// answered by one JSON envelope per line. A line reading "quit" ends the
// conversation. The HTTP subset accepts a single GET request line, maps the
// path onto an action (or a file under the web root) and the query string
// onto request fields, and is answered with one HTTP/1.1 response before the
// connection closes.
package protocol
