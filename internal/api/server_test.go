package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dspbridge/internal/api"
	"dspbridge/internal/application"
	"dspbridge/internal/domain"
)

type mockController struct {
	status    domain.Status
	health    domain.HealthReport
	startErr  error
	started   []domain.ChainSpec
	stopped   int
	bypassed  []int
	restarted []int
}

func (m *mockController) Start(_ context.Context, chain domain.ChainSpec, sampleRate, bitDepth int) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, chain)
	m.status = domain.Status{Running: true, SampleRate: sampleRate, BitDepth: bitDepth}
	return nil
}

func (m *mockController) StartBypass(_ context.Context, sampleRate int) error {
	m.bypassed = append(m.bypassed, sampleRate)
	m.status = domain.Status{Running: true, SampleRate: sampleRate, Bypass: true}
	return nil
}

func (m *mockController) RestartWithSampleRate(_ context.Context, sampleRate int) error {
	m.restarted = append(m.restarted, sampleRate)
	return nil
}

func (m *mockController) Stop(_ context.Context) error {
	m.stopped++
	m.status.Running = false
	return nil
}

func (m *mockController) Status() domain.Status             { return m.status }
func (m *mockController) HealthReport() domain.HealthReport { return m.health }

func newTestServer(t *testing.T, ctrl api.SessionController, token string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(api.NewServer(":0", token, ctrl, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &mockController{status: domain.Status{Running: true, SampleRate: 96000, Backend: "camilladsp"}}
	srv := newTestServer(t, ctrl, "")

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st domain.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Running)
	assert.Equal(t, 96000, st.SampleRate)
	assert.Equal(t, "camilladsp", st.Backend)
}

func TestStartEndpoint(t *testing.T) {
	ctrl := &mockController{}
	srv := newTestServer(t, ctrl, "")

	resp := postJSON(t, srv.URL+"/api/start", map[string]any{
		"preamp_db": -2,
		"filters": []map[string]any{
			{"kind": "Peaking", "frequency_hz": 1000, "gain_db": -3, "q": 1.0},
		},
		"sample_rate": 96000,
		"bit_depth":   24,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, ctrl.started, 1)
	require.Len(t, ctrl.started[0].Filters, 1)
	assert.Equal(t, domain.FilterPeaking, ctrl.started[0].Filters[0].Kind)
	assert.Equal(t, -2.0, ctrl.started[0].PreampDB)
}

func TestStartRejectsUnsupportedRate(t *testing.T) {
	ctrl := &mockController{}
	srv := newTestServer(t, ctrl, "")

	resp := postJSON(t, srv.URL+"/api/start", map[string]any{
		"sample_rate": 22050,
		"bit_depth":   24,
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, ctrl.started)
}

func TestBusyMapsToConflict(t *testing.T) {
	ctrl := &mockController{startErr: application.ErrBusy}
	srv := newTestServer(t, ctrl, "")

	resp := postJSON(t, srv.URL+"/api/start", map[string]any{
		"sample_rate": 48000,
		"bit_depth":   24,
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMutationsRequireAuthToken(t *testing.T) {
	ctrl := &mockController{}
	srv := newTestServer(t, ctrl, "secret")

	resp := postJSON(t, srv.URL+"/api/stop", map[string]any{}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, ctrl.stopped)

	resp = postJSON(t, srv.URL+"/api/stop", map[string]any{}, "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ctrl.stopped)

	// Reads stay open.
	getResp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestBypassAndSampleRateEndpoints(t *testing.T) {
	ctrl := &mockController{}
	srv := newTestServer(t, ctrl, "")

	resp := postJSON(t, srv.URL+"/api/bypass", map[string]any{"sample_rate": 48000}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int{48000}, ctrl.bypassed)

	resp = postJSON(t, srv.URL+"/api/samplerate", map[string]any{"sample_rate": 192000}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int{192000}, ctrl.restarted)
}
