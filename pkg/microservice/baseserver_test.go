package microservice_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/illmade-knight/go-songcatalogue/pkg/microservice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseServer_Lifecycle(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), ":0")
	server.Mux().HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	port := server.GetHTTPPort()
	require.NotEqual(t, ":0", port)

	for path, want := range map[string]string{"/healthz": "OK", "/ping": "pong"} {
		resp, err := http.Get("http://127.0.0.1" + port + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, string(body))
	}
}

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, microservice.NewLogger("debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, microservice.NewLogger("bogus").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, microservice.NewLogger("").GetLevel())
}
