package manager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-vision-core/internal/config"
)

func TestHTTPHealthz(t *testing.T) {
	m := newTestManager()
	defer m.Stop()

	srv := httptest.NewServer(NewHTTPHandler(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPStatusUnknownCameraIsNotFound(t *testing.T) {
	m := newTestManager()
	defer m.Stop()

	srv := httptest.NewServer(NewHTTPHandler(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/missing-cam")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPStatusesListsReconciledCameras(t *testing.T) {
	m := newTestManager()
	defer m.Stop()

	path := writeTestImage(t)
	errs := m.Reconcile(context.Background(), []config.VideoSource{testVideoSource("cam1", path)})
	require.Empty(t, errs)

	srv := httptest.NewServer(NewHTTPHandler(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []CameraStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
}

func TestHTTPResourcesOmittedWithoutSampler(t *testing.T) {
	m := newTestManager()
	defer m.Stop()

	srv := httptest.NewServer(NewHTTPHandler(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/resources")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
