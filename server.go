package backend

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/export"
	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
	"github.com/denysvitali/odi-invoices/pkg/pipeline"
	"github.com/denysvitali/odi-invoices/pkg/presenter"
	"github.com/denysvitali/odi-invoices/pkg/storage"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
)

// multipartOverhead is the room left for multipart boundaries and headers on
// top of the document size limit.
const multipartOverhead = 1 << 20

type Server struct {
	e        *gin.Engine
	pipeline *pipeline.Pipeline
	storage  model.RWStorage
	searcher model.Searcher
	jobs     *jobRegistry

	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	jobTTL     time.Duration
	ginLogger  bool
}

type Option func(*Server)

func WithJobTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.jobTTL = ttl
		}
	}
}

// WithRequestLogging enables gin's access log.
func WithRequestLogging() Option {
	return func(s *Server) {
		s.ginLogger = true
	}
}

var log = logrus.StandardLogger().WithField("package", "backend")

// New builds the HTTP server. store may be nil, in which case the save,
// results and export routes answer 501.
func New(p *pipeline.Pipeline, store model.RWStorage, opts ...Option) *Server {
	s := &Server{
		e:        gin.New(),
		pipeline: p,
		storage:  store,
		jobTTL:   DefaultJobTTL,
	}
	for _, o := range opts {
		o(s)
	}
	if searcher, ok := store.(model.Searcher); ok {
		s.searcher = searcher
	}
	s.jobs = newJobRegistry(s.jobTTL)
	s.jobsCtx, s.cancelJobs = context.WithCancel(context.Background())
	s.initRoutes()
	return s
}

func (s *Server) Run(addr string) error {
	return s.e.Run(addr)
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Close cancels every background job and waits for them to return.
func (s *Server) Close() {
	s.cancelJobs()
	s.jobs.closeAll()
	s.jobs.wait()
}

func (s *Server) initRoutes() {
	if s.ginLogger {
		s.e.Use(gin.Logger())
	}
	s.e.Use(gin.Recovery())
	s.e.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "X-File-Name"},
		MaxAge:          12 * time.Hour,
	}))

	s.e.GET("/healthz", s.handleHealthz)

	g := s.e.Group("/api/v1")
	g.POST("/ocr", s.handleOcr)
	g.POST("/ocr/jobs", s.handleCreateJob)
	g.GET("/ocr/jobs/:id", s.handleGetJob)
	g.POST("/ocr/jobs/:id/save", s.handleSaveJob)
	g.DELETE("/ocr/jobs/:id", s.handleDeleteJob)
	g.POST("/results", s.handleSaveResult)
	g.GET("/results", s.handleGetResults)
	g.GET("/results/:id", s.handleGetResult)
	g.GET("/export/results.xlsx", s.handleExport)
	g.POST("/search", s.handleSearch)
}

var badRequest = gin.H{
	"error": "bad request",
}

var internalServerError = gin.H{
	"error": "internal server error",
}

var notFound = gin.H{
	"error": "not found",
}

var noStorage = gin.H{
	"error": "no storage configured",
}

func (s *Server) handleHealthz(c *gin.Context) {
	ok, err := s.pipeline.Healthz(c.Request.Context())
	if err != nil || !ok {
		msg := "extraction backend unhealthy"
		if err != nil {
			msg = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleOcr(c *gin.Context) {
	upload, err := s.upload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.pipeline.Process(c.Request.Context(), upload, nil)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// upload exposes the request body as a single document. Multipart bodies are
// streamed part by part, never parsed into memory or temporary files.
func (s *Server) upload(c *gin.Context) (intake.Upload, error) {
	maxSize := s.pipeline.Intake().MaxSize()
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))

	if mediaType == "multipart/form-data" {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)
		mr, err := c.Request.MultipartReader()
		if err != nil {
			return intake.Upload{}, ocrerrors.Validation(err, "invalid multipart body")
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					return intake.Upload{}, ocrerrors.Validation(ocrerrors.ErrTooLarge, "document exceeds %d bytes", maxSize)
				}
				return intake.Upload{}, ocrerrors.Validation(err, "multipart body has no file field")
			}
			if part.FormName() != "file" {
				_ = part.Close()
				continue
			}
			return intake.Upload{
				Body:         part,
				FileName:     part.FileName(),
				DeclaredType: part.Header.Get("Content-Type"),
			}, nil
		}
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+1)
	fileName := c.GetHeader("X-File-Name")
	if fileName == "" {
		fileName = c.Query("filename")
	}
	return intake.Upload{
		Body:         c.Request.Body,
		FileName:     fileName,
		DeclaredType: mediaType,
		DeclaredSize: max(c.Request.ContentLength, 0),
	}, nil
}

func (s *Server) handleCreateJob(c *gin.Context) {
	upload, err := s.upload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	// The body belongs to the request, so intake runs before responding.
	doc, err := s.pipeline.Accept(c.Request.Context(), upload)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var save presenter.SaveFunc
	if s.storage != nil {
		save = storage.SaveFunc(s.storage)
	}
	p := presenter.New(save)
	p.Begin()
	p.SetProgress(pipeline.ProgressAccepted)

	ctx, cancel := context.WithCancel(s.jobsCtx)
	j := s.jobs.add(p, cancel)
	s.jobs.run(func() { s.runJob(ctx, j, doc) })

	c.JSON(http.StatusAccepted, gin.H{"id": j.id})
}

func (s *Server) runJob(ctx context.Context, j *job, doc *models.RawDocument) {
	defer j.cancel()
	res, err := s.pipeline.ProcessDocument(ctx, doc, j.presenter.SetProgress)
	if err != nil {
		log.Warnf("job %s failed: %v", j.id, err)
		j.presenter.Fail(err)
	} else {
		j.presenter.Complete(res)
	}
	j.finish(s.jobs.now())
}

func (s *Server) handleGetJob(c *gin.Context) {
	j, ok := s.jobs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	c.JSON(http.StatusOK, j.presenter.View())
}

func (s *Server) handleSaveJob(c *gin.Context) {
	j, ok := s.jobs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	id, err := j.presenter.Save(c.Request.Context())
	switch {
	case errors.Is(err, presenter.ErrNoSaveAction):
		c.JSON(http.StatusNotImplemented, noStorage)
	case errors.Is(err, presenter.ErrNothingToSave):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		log.Errorf("unable to save job %s: %v", j.id, err)
		c.JSON(http.StatusInternalServerError, internalServerError)
	default:
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	if !s.jobs.remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSaveResult(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, noStorage)
		return
	}
	var res models.ProcessedOcrResult
	if err := c.BindJSON(&res); err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	id, err := storage.SaveFunc(s.storage)(c.Request.Context(), &res)
	if err != nil {
		log.Errorf("unable to save result: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleGetResults(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, noStorage)
		return
	}
	results, err := s.storage.List(c.Request.Context())
	if err != nil {
		log.Errorf("unable to list results: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleGetResult(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, noStorage)
		return
	}
	res, err := s.storage.Retrieve(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, notFound)
			return
		}
		log.Errorf("unable to retrieve result: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, res)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExport(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, noStorage)
		return
	}
	results, err := s.storage.List(c.Request.Context())
	if err != nil {
		log.Errorf("unable to list results: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	b, err := export.ResultsXLSX(results)
	if err != nil {
		log.Errorf("unable to export results: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="results.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, b)
}

type SearchRequest struct {
	SearchTerm string `json:"searchTerm"`
	Size       int    `json:"size"`
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "search requires the opensearch storage"})
		return
	}
	var searchRequest SearchRequest
	if err := c.BindJSON(&searchRequest); err != nil || strings.TrimSpace(searchRequest.SearchTerm) == "" {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	results, err := s.searcher.Search(c.Request.Context(), searchRequest.SearchTerm, searchRequest.Size)
	if err != nil {
		log.Errorf("unable to perform search: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type errorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Kind      ocrerrors.Kind `json:"kind"`
	Transient bool           `json:"transient"`
}

func (s *Server) writeError(c *gin.Context, err error) {
	e, ok := ocrerrors.As(err)
	if !ok {
		e = ocrerrors.Internal(err, "request failed")
	}
	status := statusFor(e)
	if status >= 500 {
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		log.Infof("%s %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	msg := message(e)
	c.JSON(status, errorResponse{
		Error:     msg,
		Message:   msg,
		Kind:      e.Kind,
		Transient: e.Transient,
	})
}

func statusFor(e *ocrerrors.Error) int {
	switch e.Kind {
	case ocrerrors.KindValidation:
		switch {
		case errors.Is(e, ocrerrors.ErrTooLarge):
			return http.StatusRequestEntityTooLarge
		case errors.Is(e, ocrerrors.ErrUnsupportedType):
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case ocrerrors.KindExtraction:
		if e.Transient {
			return http.StatusServiceUnavailable
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// message hides internal causes from clients.
func message(e *ocrerrors.Error) string {
	if e.Kind == ocrerrors.KindInternal {
		return e.Message
	}
	if e.Err != nil && e.Kind == ocrerrors.KindValidation {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}
