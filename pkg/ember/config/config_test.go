package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server {
	listen 127.0.0.1:8080;
	server_name localhost test.local;
	root ./www;
	client_max_body_size 1m;
	timeout 30;
	error_page 404 ./www/404.html;
	error_page 500 502 503 ./www/50x.html;

	location / {
		methods GET POST;
		index index.html;
		autoindex off;
	}

	location /cgi-bin/ {
		methods GET POST;
		cgi .py /usr/bin/python3;
	}

	location /upload/ {
		methods POST;
		upload_store ./www/uploads;
	}

	location /old {
		return 301 /new;
	}
}
`

func TestParseSample(t *testing.T) {
	servers, err := Parse(sampleConfig, "sample.conf")
	require.NoError(t, err)
	require.Len(t, servers, 1)

	sc := servers[0]
	require.Equal(t, "127.0.0.1", sc.BindAddress)
	require.Equal(t, []int{8080}, sc.Ports)
	require.Equal(t, []string{"localhost", "test.local"}, sc.ServerNames)
	require.Equal(t, "./www", sc.Root)
	require.EqualValues(t, 1024*1024, sc.ClientMaxBodySize)
	require.Equal(t, "./www/404.html", sc.ErrorPages[404])
	require.Equal(t, "./www/50x.html", sc.ErrorPages[502])
	require.Len(t, sc.Locations, 4)

	root := sc.Locations[0]
	require.Equal(t, "/", root.Prefix)
	require.True(t, root.AllowsMethod("GET"))
	require.False(t, root.AllowsMethod("DELETE"))
	require.Equal(t, "index.html", root.Index)

	cgi := sc.Locations[1]
	require.Equal(t, "/usr/bin/python3", cgi.CGI[".py"])

	upload := sc.Locations[2]
	require.Equal(t, "./www/uploads", upload.UploadDir)

	old := sc.Locations[3]
	require.NotNil(t, old.Redirect)
	require.Equal(t, 301, old.Redirect.Code)
	require.Equal(t, "/new", old.Redirect.Target)
}

func TestValidateRejectsDuplicateTriple(t *testing.T) {
	src := `
server {
	listen 127.0.0.1:8080;
	server_name localhost;
	root ./a;
}
server {
	listen 127.0.0.1:8080;
	server_name localhost;
	root ./b;
}
`
	servers, err := Parse(src, "dup.conf")
	require.NoError(t, err)
	err = Validate(servers)
	require.Error(t, err)
}

func TestValidateAllowsDistinctServerNames(t *testing.T) {
	src := `
server {
	listen 127.0.0.1:8080;
	server_name localhost;
	root ./a;
}
server {
	listen 127.0.0.1:8080;
	server_name test.local;
	root ./b;
}
`
	servers, err := Parse(src, "ok.conf")
	require.NoError(t, err)
	require.NoError(t, Validate(servers))
}

func TestParseRejectsMissingListen(t *testing.T) {
	_, err := Parse(`server { root ./www; }`, "bad.conf")
	require.Error(t, err)
}
