package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storyreel/internal/analysis"
	"storyreel/internal/app"
	"storyreel/internal/domain/library"
	"storyreel/internal/ingest"
	"storyreel/internal/narration"
)

type visualsRequest struct {
	Style string `json:"style"`
	Seed  *int   `json:"seed"`
}

type visualsResponse struct {
	Images []string `json:"images"`
}

type entityImageResponse struct {
	ImageURL *string `json:"image_url"`
}

type questionRequest struct {
	Question string `json:"question" binding:"required"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type questionsResponse struct {
	Questions []string `json:"questions"`
}

type audioResponse struct {
	AudioURL string `json:"audio_url"`
}

type API struct {
	svc *app.Service
	log *logrus.Entry
}

func NewAPI(svc *app.Service) *API {
	return &API{svc: svc, log: logrus.WithField("component", "api")}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", a.Health)

	api := router.Group("/api")
	{
		api.GET("/books", a.ListBooks)
		api.POST("/books", a.UploadBook)
		api.GET("/books/:id", a.GetBook)
		api.DELETE("/books/:id", a.DeleteBook)
		api.POST("/books/:id/analyze", a.AnalyzeBook)
		api.POST("/books/:id/visuals", a.GenerateVisuals)
		api.POST("/books/:id/audio", a.GenerateAudio)
		api.POST("/books/:id/qa", a.AskQuestion)
		api.GET("/books/:id/suggested_questions", a.SuggestedQuestions)
		api.GET("/entity_image/:name", a.EntityImage)
		api.Static("/assets", a.svc.OutputDir)
	}
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "storyreel"})
}

func (a *API) ListBooks(c *gin.Context) {
	books, err := a.svc.Store.List()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

// UploadBook stores a multipart "file" field and registers it
func (a *API) UploadBook(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}

	tmp, err := os.MkdirTemp("", "storyreel-upload-")
	if err != nil {
		a.fail(c, err)
		return
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, name)
	if err := c.SaveUploadedFile(file, path); err != nil {
		a.fail(c, err)
		return
	}

	book, err := a.svc.Import(path)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (a *API) GetBook(c *gin.Context) {
	book, err := a.svc.Store.Get(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (a *API) DeleteBook(c *gin.Context) {
	if err := a.svc.Store.Delete(c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) AnalyzeBook(c *gin.Context) {
	m, err := a.svc.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GenerateVisuals runs the image batch for a book. Images that could not be
// produced are left out of the response rather than failing it.
func (a *API) GenerateVisuals(c *gin.Context) {
	var req visualsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	seed := app.RandomSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	images, err := a.svc.Visualize(c.Request.Context(), c.Param("id"), req.Style, seed)
	if err != nil {
		a.fail(c, err)
		return
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, a.svc.AssetURL(img))
	}
	c.JSON(http.StatusOK, visualsResponse{Images: urls})
}

// EntityImage returns a character portrait URL, or null when it could not
// be generated.
func (a *API) EntityImage(c *gin.Context) {
	name := c.Param("name")
	role := c.DefaultQuery("role", "Character")

	path, err := a.svc.Portrait(c.Request.Context(), name, role, c.Query("style"), app.RandomSeed)
	if err != nil {
		a.log.WithError(err).WithField("entity", name).Warn("Portrait generation failed")
		c.JSON(http.StatusOK, entityImageResponse{})
		return
	}
	url := a.svc.AssetURL(path)
	c.JSON(http.StatusOK, entityImageResponse{ImageURL: &url})
}

func (a *API) GenerateAudio(c *gin.Context) {
	path, err := a.svc.Narrate(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, audioResponse{AudioURL: a.svc.AssetURL(path)})
}

func (a *API) AskQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	answer, err := a.svc.Ask(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answerResponse{Answer: answer})
}

func (a *API) SuggestedQuestions(c *gin.Context) {
	questions, err := a.svc.SuggestQuestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, questionsResponse{Questions: questions})
}

func (a *API) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, app.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, narration.ErrUnsupportedEngine), errors.Is(err, analysis.ErrNoModel):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		a.log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
