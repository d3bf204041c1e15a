package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"torrentify/internal/artifact"
	"torrentify/internal/broadcast"
	"torrentify/internal/domain"
	"torrentify/internal/inventory"
	"torrentify/internal/pipeline"
	"torrentify/internal/service"
	"torrentify/internal/storage"
	"torrentify/internal/telemetry"
	"torrentify/internal/tmdb"
)

const version = "2.0.0"

// Inventory is the part of the media scanner the API reads.
type Inventory interface {
	Scan(ctx context.Context, force bool) (*inventory.Snapshot, error)
	Grouped(ctx context.Context, force bool) (*inventory.GroupedView, error)
	FileByID(ctx context.Context, id string) (domain.MediaItem, bool, error)
	Clear()
}

// Observers serves the live event channel.
type Observers interface {
	ServeWebSocket(ctx context.Context, conn *websocket.Conn)
	Count() int
	Stats() []broadcast.ObserverInfo
}

type KeyValidator interface {
	Validate(ctx context.Context, key string) error
}

// Exports lists and removes exported artifact folders.
type Exports interface {
	List(ctx context.Context, category domain.Category) ([]storage.ObjectInfo, error)
	Remove(ctx context.Context, category domain.Category, folder string) error
}

type Options struct {
	Jobs      service.JobService
	Processor pipeline.Processor
	Inventory Inventory
	Observers Observers
	Auth      service.AuthService
	TMDB      KeyValidator
	// Exports is nil when no bucket is configured.
	Exports Exports
	// OutputDir returns the current artifact root.
	OutputDir func() string
	Logger    *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	opts    Options
	started time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.OutputDir == nil {
		opts.OutputDir = func() string { return "/data/torrent" }
	}
	return &Handler{opts: opts, started: time.Now()}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), requestLogger(h.opts.Logger))

	router.GET("/metrics", gin.WrapH(telemetry.Handler()))
	router.GET("/ws", h.authMiddleware(true), h.serveEvents)

	public := router.Group("/api")
	{
		public.GET("/health", h.health)
		public.POST("/auth/login", h.login)
		public.GET("/auth/status", h.authStatus)
	}

	api := router.Group("/api", h.authMiddleware(false))
	{
		api.GET("/files", h.listFiles)
		api.GET("/files/:id", h.getFile)
		api.POST("/process", h.process)
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/:id", h.getJob)
		api.GET("/jobs/:id/logs", h.jobLogs)
		api.GET("/history", h.history)
		api.GET("/stats", h.stats)
		api.POST("/cache/clear", h.clearCache)
		api.GET("/download/:category/:folder", h.listArtifacts)
		api.GET("/download/:category/:folder/:file", h.download)
		api.POST("/tmdb/test", h.testTMDB)
		api.GET("/exports", h.listExports)
		api.DELETE("/exports/:category/:folder", h.deleteExport)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Seconds(),
	})
}

func (h *Handler) listFiles(c *gin.Context) {
	ctx := c.Request.Context()
	refresh := c.Query("refresh") == "true"
	kind := c.DefaultQuery("type", "all")

	var category domain.Category
	if kind != "all" {
		parsed, err := domain.ParseCategory(kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		category = parsed
	}

	if c.Query("grouped") == "true" {
		view, err := h.opts.Inventory.Grouped(ctx, refresh)
		if err != nil {
			h.internalError(c, "scan media", err)
			return
		}
		c.JSON(http.StatusOK, view)
		return
	}

	snap, err := h.opts.Inventory.Scan(ctx, refresh)
	if err != nil {
		h.internalError(c, "scan media", err)
		return
	}
	if category == "" {
		c.JSON(http.StatusOK, snap)
		return
	}
	items := snap.Category(category)
	c.JSON(http.StatusOK, gin.H{
		"type":      category,
		"files":     items,
		"stats":     inventory.Stats(items),
		"scannedAt": snap.ScannedAt,
	})
}

func (h *Handler) getFile(c *gin.Context) {
	item, ok, err := h.opts.Inventory.FileByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "lookup file", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found", "fileId": c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, item)
}

type processRequest struct {
	Files        []string          `json:"files"`
	Directories  []string          `json:"directories"`
	TorrentNames map[string]string `json:"torrentNames"`
}

func (h *Handler) process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Files) == 0 && len(req.Directories) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain an array of file ids or directory ids"})
		return
	}

	ctx := c.Request.Context()
	isDirectory := len(req.Directories) > 0
	var (
		jobID string
		count int
		err   error
	)
	if isDirectory {
		count = len(req.Directories)
		jobID, err = h.opts.Processor.SubmitDirectories(ctx, req.Directories, req.TorrentNames)
	} else {
		count = len(req.Files)
		jobID, err = h.opts.Processor.SubmitFiles(ctx, req.Files)
	}

	switch {
	case errors.Is(err, pipeline.ErrNoValidItems):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "jobId": jobID})
		return
	case errors.Is(err, pipeline.ErrNotStarted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.internalError(c, "start processing", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":       jobID,
		"filesCount":  count,
		"isDirectory": isDirectory,
		"message":     "Processing started",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) listJobs(c *gin.Context) {
	var statuses []domain.JobStatus
	if raw := c.Query("status"); raw != "" {
		status := domain.JobStatus(raw)
		switch status {
		case domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusCompleted, domain.JobStatusError:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		statuses = append(statuses, status)
	}
	jobs := h.opts.Jobs.ListJobs(c.Request.Context(), statuses...)
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.opts.Jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) jobLogs(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, err := h.opts.Jobs.Logs(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) history(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	jobs, err := h.opts.Jobs.History(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "load history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *Handler) stats(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := h.opts.Inventory.Scan(ctx, false)
	if err != nil {
		h.internalError(c, "scan media", err)
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"files": snap.Stats,
		"jobs":  h.opts.Jobs.Stats(ctx),
		"websocket": gin.H{
			"connectedClients": h.opts.Observers.Count(),
			"clients":          h.opts.Observers.Stats(),
		},
		"system": gin.H{
			"uptime":     time.Since(h.started).Seconds(),
			"goroutines": runtime.NumGoroutine(),
			"memory":     gin.H{"used": mem.HeapInuse, "total": mem.HeapSys},
			"goVersion":  runtime.Version(),
		},
	})
}

func (h *Handler) clearCache(c *gin.Context) {
	h.opts.Inventory.Clear()
	c.JSON(http.StatusOK, gin.H{
		"message":   "Cache cleared successfully",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) download(c *gin.Context) {
	category, folder, file := c.Param("category"), c.Param("folder"), c.Param("file")
	if _, err := domain.ParseCategory(category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path, err := artifact.Resolve(h.opts.OutputDir(), category, folder, file)
	if err != nil {
		h.opts.Logger.WithField("request_id", c.GetString(requestIDKey)).Warnf("download rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found", "path": category + "/" + folder + "/" + file})
		return
	}

	c.Header("Content-Type", artifact.ContentType(file))
	c.FileAttachment(path, file)
}

type artifactEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	DownloadURL string    `json:"downloadUrl"`
}

func (h *Handler) listArtifacts(c *gin.Context) {
	category, folder := c.Param("category"), c.Param("folder")
	if _, err := domain.ParseCategory(category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if folder != filepath.Base(folder) || folder == "." || folder == ".." {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder"})
		return
	}

	dir := filepath.Join(h.opts.OutputDir(), category, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "folder not found", "path": category + "/" + folder})
			return
		}
		h.internalError(c, "read artifact folder", err)
		return
	}

	files := make([]artifactEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !artifact.Downloadable(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, artifactEntry{
			Name:        e.Name(),
			Size:        info.Size(),
			Modified:    info.ModTime().UTC(),
			DownloadURL: "/api/download/" + category + "/" + folder + "/" + e.Name(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	c.JSON(http.StatusOK, gin.H{"folder": folder, "type": category, "files": files})
}

type tmdbTestRequest struct {
	APIKey string `json:"apiKey"`
}

func (h *Handler) testTMDB(c *gin.Context) {
	var req tmdbTestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	err := h.opts.TMDB.Validate(c.Request.Context(), strings.TrimSpace(req.APIKey))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true, "message": "API key is valid"})
	case errors.Is(err, tmdb.ErrNoAPIKey), errors.Is(err, tmdb.ErrUnauthorized):
		c.JSON(http.StatusOK, gin.H{"valid": false, "message": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"valid": false, "error": err.Error()})
	}
}

func (h *Handler) listExports(c *gin.Context) {
	if h.opts.Exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export storage not configured"})
		return
	}
	var category domain.Category
	if raw := c.Query("category"); raw != "" {
		parsed, err := domain.ParseCategory(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		category = parsed
	}

	objects, err := h.opts.Exports.List(c.Request.Context(), category)
	if err != nil {
		h.internalError(c, "list exports", err)
		return
	}
	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteExport(c *gin.Context) {
	if h.opts.Exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export storage not configured"})
		return
	}
	category, err := domain.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	folder := c.Param("folder")
	if folder != filepath.Base(folder) || folder == "." || folder == ".." {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := h.opts.Exports.Remove(ctx, category, folder); err != nil {
		h.internalError(c, "delete export", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": string(category) + "/" + folder})
}

func (h *Handler) serveEvents(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.opts.Logger.Warnf("accept websocket: %v", err)
		return
	}
	h.opts.Observers.ServeWebSocket(c.Request.Context(), conn)
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func (h *Handler) jobError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found", "jobId": c.Param("id")})
		return
	}
	h.internalError(c, "load job", err)
}

func (h *Handler) internalError(c *gin.Context, action string, err error) {
	h.opts.Logger.WithField("request_id", c.GetString(requestIDKey)).Errorf("%s: %v", action, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action, "message": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
