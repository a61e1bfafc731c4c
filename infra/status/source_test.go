package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warehousekit/dispatchd/core/availability"
	"github.com/warehousekit/dispatchd/infra/logger"
)

func testSource(t *testing.T, srv *httptest.Server) *Source {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	cfg := Config{Host: u.Hostname(), Port: port}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return NewSource(cfg, logger.NopLogger{})
}

func TestFetchStatuses_WrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"statuses":{"Z-A1":"free","Z-A2":"occupied"}}`))
	}))
	defer srv.Close()

	s := testSource(t, srv)
	got, err := s.FetchStatuses(context.Background(), []string{"Z-A1", "Z-A2"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"Z-A1": "free", "Z-A2": "occupied"}, got)
}

func TestFetchStatuses_BareMapResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Z-A1":"free"}`))
	}))
	defer srv.Close()

	s := testSource(t, srv)
	got, err := s.FetchStatuses(context.Background(), []string{"Z-A1"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"Z-A1": "free"}, got)
}

func TestFetchStatuses_EmptyIsErrNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := testSource(t, srv)
	_, err := s.FetchStatuses(context.Background(), []string{"Z-A1"})
	require.ErrorIs(t, err, availability.ErrNoData)
}

func TestFetchStatuses_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := testSource(t, srv)
	_, err := s.FetchStatuses(context.Background(), []string{"Z-A1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, availability.ErrNoData)
}
