package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/irc-risk/hand-cli/internal/config"
	"github.com/irc-risk/hand-cli/internal/model"
	"github.com/irc-risk/hand-cli/internal/store"
	"github.com/irc-risk/hand-cli/internal/table"
)

// uploadAddressColumn is the column geocoded for uploaded files. Uploads
// must carry the fixed report layout, unlike the run command where the
// caller names the column.
const uploadAddressColumn = "ADDRESS"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP upload service",
	Long:  "Serves the report pipeline over HTTP: uploaded CSV or Excel files are processed synchronously and the run history is queryable under /api/hand/runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve", cfg.Sampler.Project)
		if err != nil {
			return err
		}
		defer env.Close()

		router := newRouter(env, cfg.Server, cfg.Sampler.Project)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown. In-flight uploads run whole pipelines, so give
		// them a moment to finish writing before the listener dies.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API. It is split from the serve command so
// handler tests can exercise the same routes without a listener.
func newRouter(env *pipelineEnv, server config.ServerConfig, project string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Pipelines are memory- and quota-heavy; cap how many uploads process
	// at once. Excess requests queue until a slot frees up.
	uploads := semaphore.NewWeighted(int64(server.MaxUploads))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/hand/upload-hand", func(w http.ResponseWriter, req *http.Request) {
		if err := uploads.Acquire(req.Context(), 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		defer uploads.Release(1)

		handleUpload(w, req, env, server, project)
	})

	r.Get("/api/hand/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if s := req.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}
		filter := store.RunFilter{
			Status:  model.RunStatus(req.URL.Query().Get("status")),
			Project: req.URL.Query().Get("project"),
			Limit:   limit,
		}

		runs, err := env.Store.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not list runs")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"runs":  runs,
			"count": len(runs),
		})
	})

	r.Get("/api/hand/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not load run")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

// handleUpload stores the multipart file, validates it, and runs the
// pipeline on it synchronously. Validation problems are the client's fault
// (400); anything after that is a processing failure (500).
func handleUpload(w http.ResponseWriter, req *http.Request, env *pipelineEnv, server config.ServerConfig, project string) {
	file, header, err := req.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close() //nolint:errcheck

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".xlsx", ".xls":
	default:
		writeError(w, http.StatusBadRequest, "invalid file format, use CSV or Excel")
		return
	}

	if err := os.MkdirAll(server.UploadDir, 0o755); err != nil {
		zap.L().Error("create upload dir", zap.String("dir", server.UploadDir), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	inputPath := filepath.Join(server.UploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), name))
	if err := saveUpload(inputPath, file); err != nil {
		zap.L().Error("save upload", zap.String("path", inputPath), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	// Reject malformed files and missing columns before a run is recorded.
	tbl, err := table.Load(inputPath, table.LoadOptions{})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("could not read file: %v", err))
		return
	}
	if missing := tbl.MissingColumns(server.RequiredColumns); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
		return
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), ext)
	outputPath := filepath.Join(server.UploadDir, base+"_processed.csv")

	job := model.Job{
		InputPath:     inputPath,
		AddressColumn: uploadAddressColumn,
		OutputPath:    outputPath,
		Project:       project,
		SourceName:    name,
	}

	run, err := env.Pipeline.Run(req.Context(), job)
	if err != nil {
		zap.L().Error("upload processing failed",
			zap.String("file", name),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
		return
	}

	zap.L().Info("upload processed",
		zap.String("file", name),
		zap.String("run_id", run.ID),
		zap.Int("rows", run.Result.RowsTotal),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "processing complete",
		"run_id":  run.ID,
		"files": map[string]string{
			"processed_csv": outputPath,
		},
	})
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return eris.Wrap(err, "write upload file")
	}
	if err := dst.Close(); err != nil {
		return eris.Wrap(err, "close upload file")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
