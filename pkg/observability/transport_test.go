package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monorel/pkg/observability"
)

func TestTransport_PassesThrough(t *testing.T) {
	t.Parallel()

	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := observability.NewHTTPClient()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/repos/acme/mono/git/ref/tags/x", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "/repos/acme/mono/git/ref/tags/x", gotPath)
}

func TestTransport_WrapsErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)

	_, err = observability.NewTransport(nil).RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round trip GET")
}
