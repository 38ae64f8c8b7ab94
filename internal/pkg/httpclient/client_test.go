package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name":"catalog"}`))
		case "/garbage":
			w.Write([]byte(`{`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(noop.NewTracerProvider().Tracer("test"))
	ctx := context.Background()

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.GetJSON(ctx, srv.URL+"/ok", &out))
	assert.Equal(t, "catalog", out.Name)

	err := client.GetJSON(ctx, srv.URL+"/missing", &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	assert.Error(t, client.GetJSON(ctx, srv.URL+"/garbage", &out))
}
