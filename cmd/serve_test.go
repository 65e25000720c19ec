package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/irc-risk/hand-cli/internal/config"
	"github.com/irc-risk/hand-cli/internal/hand"
	"github.com/irc-risk/hand-cli/internal/model"
	"github.com/irc-risk/hand-cli/internal/store"
	"github.com/irc-risk/hand-cli/pkg/geocode"
	"github.com/irc-risk/hand-cli/pkg/raster"
)

// newGeocodeServer answers every address with fixed coordinates.
func newGeocodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"results": []map[string]any{
				{"geometry": map[string]any{"location": map[string]float64{"lat": -23.55, "lng": -46.63}}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newSamplerServer accepts session probes and answers every submitted point
// with the given category code.
func newSamplerServer(t *testing.T, value int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}

		var body struct {
			Points *geojson.FeatureCollection `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		type sample struct {
			ID    int `json:"id"`
			Value int `json:"value"`
		}
		resp := struct {
			Samples []sample `json:"samples"`
		}{}
		for _, f := range body.Points.Features {
			id, ok := f.Properties["id"].(float64)
			require.True(t, ok, "feature without numeric id")
			resp.Samples = append(resp.Samples, sample{ID: int(id), Value: value})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestEnv wires a pipeline against local fake providers and a SQLite
// store, mirroring what initPipeline builds in production.
func newTestEnv(t *testing.T) (*pipelineEnv, config.ServerConfig) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	geocoder := geocode.NewClient("test-key",
		geocode.WithBaseURL(newGeocodeServer(t).URL),
		geocode.WithRateLimit(1000),
	)
	sampler := raster.NewHTTPSampler("ee-test", "projects/ee-test/assets/hand",
		raster.WithBaseURL(newSamplerServer(t, 3).URL),
	)

	pipelineCfg := &config.Config{}
	pipelineCfg.Output.Delimiter = ";"

	env := &pipelineEnv{
		Store:    st,
		Pipeline: hand.New(pipelineCfg, st, geocoder, sampler, nil),
		Geocoder: geocoder,
		Sampler:  sampler,
	}

	server := config.ServerConfig{
		Port:            8080,
		UploadDir:       t.TempDir(),
		MaxUploads:      2,
		RequiredColumns: []string{"ADDRESS", "TIV"},
		CORSOrigins:     []string{"*"},
	}
	return env, server
}

// multipartFile builds a multipart body with one file field.
func multipartFile(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestUploadHand_ProcessesFile(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	csv := "ADDRESS;TIV\nRua A, 123;1000\n;2000\n"
	body, contentType := multipartFile(t, "enderecos.csv", []byte(csv))

	req := httptest.NewRequest(http.MethodPost, "/api/hand/upload-hand", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Message string            `json:"message"`
		RunID   string            `json:"run_id"`
		Files   map[string]string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "processing complete", resp.Message)
	assert.NotEmpty(t, resp.RunID)

	// The processed CSV is on disk with every input row present.
	outPath := resp.Files["processed_csv"]
	require.NotEmpty(t, outPath)
	out, err := os.ReadFile(outPath)
	require.NoError(t, err)

	expected := "ADDRESS;TIV;Latitude;Longitude;MISSING_ADDRESS;categoria_hand\n" +
		"Rua A, 123;1000;-23.55;-46.63;false;Médio (5-10m)\n" +
		";2000;;;true;\n"
	assert.Equal(t, expected, string(out))

	// The run is recorded and queryable.
	getReq := httptest.NewRequest(http.MethodGet, "/api/hand/runs/"+resp.RunID, nil)
	getRR := httptest.NewRecorder()
	router.ServeHTTP(getRR, getReq)

	require.Equal(t, http.StatusOK, getRR.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(getRR.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "enderecos.csv", run.Job.SourceName)
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.RowsTotal)
	assert.Equal(t, 1, run.Result.RowsMatched)
}

func TestUploadHand_MissingFileField(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "nope"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/hand/upload-hand", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"file" is required`)
}

func TestUploadHand_RejectsExtension(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	body, contentType := multipartFile(t, "notes.txt", []byte("whatever"))

	req := httptest.NewRequest(http.MethodPost, "/api/hand/upload-hand", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid file format")
}

func TestUploadHand_MissingRequiredColumns(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	csv := "ADDRESS;VALUE\nRua A, 123;1000\n"
	body, contentType := multipartFile(t, "enderecos.csv", []byte(csv))

	req := httptest.NewRequest(http.MethodPost, "/api/hand/upload-hand", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing required columns")
	assert.Contains(t, rr.Body.String(), "TIV")
}

func TestRunsEndpoint_List(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	ctx := context.Background()
	run, err := env.Store.CreateRun(ctx, model.Job{
		InputPath:     "/data/a.csv",
		AddressColumn: "ADDRESS",
		OutputPath:    "/data/a_out.csv",
		Project:       "ee-test",
	})
	require.NoError(t, err)
	require.NoError(t, env.Store.UpdateRunResult(ctx, run.ID, &model.RunResult{
		Error: "pipeline: load input",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/hand/runs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Runs  []model.Run `json:"runs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, model.RunStatusFailed, resp.Runs[0].Status)

	// Status filter excludes non-matching runs.
	req = httptest.NewRequest(http.MethodGet, "/api/hand/runs?status=complete", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestRunsEndpoint_GetNotFound(t *testing.T) {
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	req := httptest.NewRequest(http.MethodGet, "/api/hand/runs/no-such-run", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

// getFreePort returns a free TCP port on localhost.
func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestServer_Lifecycle(t *testing.T) {
	// Full start + request + graceful shutdown cycle against the real router.
	env, server := newTestEnv(t)
	router := newRouter(env, server, "ee-test")

	port := getFreePort(t)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for the listener to come up.
	var ready bool
	for i := 0; i < 20; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, srv.Shutdown(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServeCmd_Metadata(t *testing.T) {
	assert.Equal(t, "serve", serveCmd.Use)
	assert.NotEmpty(t, serveCmd.Short)
}

func TestRunCmd_Metadata(t *testing.T) {
	assert.Contains(t, runCmd.Use, "run ")
	assert.NotEmpty(t, runCmd.Short)
	assert.NotEmpty(t, runCmd.Long)
}
