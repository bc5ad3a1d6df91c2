package cgi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/ember/pkg/ember/wire"
)

func TestBuildEnv(t *testing.T) {
	req := &wire.Request{
		MethodRaw:     "GET",
		RawQuery:      "name=Alice",
		ContentLength: 0,
	}
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Content-Type", "text/plain")

	env := BuildEnv(req, "/srv/cgi-bin/hello.py", "/extra", "localhost", 8080)

	require.Contains(t, env, "GATEWAY_INTERFACE=CGI/1.1")
	require.Contains(t, env, "REQUEST_METHOD=GET")
	require.Contains(t, env, "SCRIPT_FILENAME=/srv/cgi-bin/hello.py")
	require.Contains(t, env, "PATH_INFO=/extra")
	require.Contains(t, env, "QUERY_STRING=name=Alice")
	require.Contains(t, env, "SERVER_NAME=localhost")
	require.Contains(t, env, "SERVER_PORT=8080")
	require.Contains(t, env, "HTTP_ACCEPT_LANGUAGE=en-US")
	require.Contains(t, env, "CONTENT_TYPE=text/plain")

	for _, e := range env {
		require.NotContains(t, e, "HTTP_CONTENT_TYPE")
	}
}

func TestBuildEnvOmitsContentLengthWhenZero(t *testing.T) {
	req := &wire.Request{MethodRaw: "GET"}
	env := BuildEnv(req, "/s.py", "", "localhost", 80)
	for _, e := range env {
		require.NotContains(t, e, "CONTENT_LENGTH")
	}
}
