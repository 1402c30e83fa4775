package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/Brownie44l1/fer-web/internal/prediction"
	"github.com/Brownie44l1/fer-web/internal/store"
	"github.com/gin-gonic/gin"
)

const (
	msgNoFile       = "No file uploaded"
	msgNoSelection  = "No file selected"
	msgSaveFailed   = "Failed to save uploaded file"
	uploadsURLPath  = "/static/uploads"
	defaultHistoryN = 20
	maxFieldBytes   = 4 << 10
)

// Predictor is satisfied by *prediction.Service.
type Predictor interface {
	Predict(ctx context.Context, imagePath string) prediction.Result
	ModelLoaded() bool
}

// Recorder is satisfied by *store.Store.
type Recorder interface {
	Append(ctx context.Context, rec *store.Prediction) error
	Recent(ctx context.Context, limit int) ([]store.Prediction, error)
}

type Options struct {
	UploadsDir        string
	AllowedExtensions []string
	MaxUploadBytes    int64
}

type Handler struct {
	predictor Predictor
	records   Recorder
	opts      Options
	allowed   map[string]bool
}

func NewHandler(predictor Predictor, records Recorder, opts Options) *Handler {
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Handler{
		predictor: predictor,
		records:   records,
		opts:      opts,
		allowed:   allowed,
	}
}

// PredictionResponse is the JSON body of /predict/image.
type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float64            `json:"confidence"`
	Status      string             `json:"status"`
	Predictions map[string]float64 `json:"predictions,omitempty"`
	ImagePath   string             `json:"image_path"`
	UserName    string             `json:"user_name"`
}

// page is the data the index template renders.
type page struct {
	Error       string
	Emotion     string
	Confidence  string
	ImagePath   string
	UserName    string
	Success     bool
	ModelLoaded bool
}

// upload is an accepted and saved file.
type upload struct {
	filename string
	path     string
	userName string
}

// uploadError is a rejected request; status is the HTTP code to answer with.
type uploadError struct {
	status  int
	message string
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": h.predictor.ModelLoaded()})
}

func (h *Handler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, page{})
}

// Reset drops whatever result was displayed. Nothing is stored, so this is
// only a redirect.
func (h *Handler) Reset(c *gin.Context) {
	c.Redirect(http.StatusFound, "/")
}

// Predict handles the HTML form.
func (h *Handler) Predict(c *gin.Context) {
	up, uerr := h.receiveUpload(c)
	if uerr != nil {
		h.render(c, uerr.status, page{Error: uerr.message})
		return
	}

	res := h.predictAndRecord(c.Request.Context(), up)

	h.render(c, http.StatusOK, page{
		Emotion:    res.Label,
		Confidence: fmt.Sprintf("%.2f", res.Confidence),
		ImagePath:  imageURL(up.filename),
		UserName:   up.userName,
		Success:    res.OK(),
	})
}

// PredictFromImage runs the same pipeline as Predict and answers in JSON.
func (h *Handler) PredictFromImage(c *gin.Context) {
	up, uerr := h.receiveUpload(c)
	if uerr != nil {
		status := uerr.status
		if status == http.StatusOK {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": uerr.message})
		return
	}

	res := h.predictAndRecord(c.Request.Context(), up)

	c.JSON(http.StatusOK, PredictionResponse{
		Class:       res.Label,
		Confidence:  math.Round(res.Confidence*100) / 100,
		Status:      res.Status.String(),
		Predictions: res.Scores,
		ImagePath:   imageURL(up.filename),
		UserName:    up.userName,
	})
}

// History lists the most recent log records.
func (h *Handler) History(c *gin.Context) {
	limit := defaultHistoryN
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	rows, err := h.records.Recent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("failed to list predictions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list predictions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": rows})
}

// receiveUpload walks the multipart body part by part and streams the file
// to disk. Reading parts directly keeps a file part sent with an empty
// filename ("No file selected") apart from a request with no file part at
// all ("No file uploaded").
func (h *Handler) receiveUpload(c *gin.Context) (*upload, *uploadError) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		slog.Debug("no multipart form", "error", err)
		return nil, &uploadError{http.StatusOK, msgNoFile}
	}

	var (
		saved    *upload
		userName string
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.discard(saved)
			return nil, h.readError(err)
		}

		switch part.FormName() {
		case "file":
			filename, isFile := partFilename(part)
			if !isFile || saved != nil {
				break
			}
			if filename == "" {
				part.Close()
				return nil, &uploadError{http.StatusOK, msgNoSelection}
			}
			if !h.allowedFile(filename) {
				part.Close()
				return nil, &uploadError{http.StatusOK, h.invalidTypeMessage()}
			}
			var uerr *uploadError
			if saved, uerr = h.save(part, filename); uerr != nil {
				part.Close()
				return nil, uerr
			}
		case "user_name":
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			if err != nil {
				part.Close()
				h.discard(saved)
				return nil, h.readError(err)
			}
			userName = string(value)
		}
		part.Close()
	}

	if saved == nil {
		return nil, &uploadError{http.StatusOK, msgNoFile}
	}

	saved.userName = strings.TrimSpace(userName)
	if saved.userName == "" {
		saved.userName = store.AnonymousUser
	}

	slog.Info("upload received", "stored", saved.filename, "user", saved.userName)
	return saved, nil
}

// save copies one file part into the uploads directory under a name no
// other upload holds.
func (h *Handler) save(src io.Reader, original string) (*upload, *uploadError) {
	filename, f, err := createUploadFile(h.opts.UploadsDir, original)
	if err != nil {
		slog.Error("failed to create upload file", "original", original, "error", err)
		return nil, &uploadError{http.StatusInternalServerError, msgSaveFailed}
	}
	dst := f.Name()

	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			slog.Warn("failed to remove partial upload", "path", dst, "error", rmErr)
		}
		if isTooLarge(err) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, h.tooLargeMessage()}
		}
		slog.Error("failed to save upload", "path", dst, "error", err)
		return nil, &uploadError{http.StatusInternalServerError, msgSaveFailed}
	}

	slog.Debug("upload saved", "original", original, "stored", filename, "size", size)
	return &upload{filename: filename, path: dst}, nil
}

// discard removes a saved file whose request turned out to be invalid.
func (h *Handler) discard(up *upload) {
	if up == nil {
		return
	}
	if err := os.Remove(up.path); err != nil {
		slog.Warn("failed to remove rejected upload", "path", up.path, "error", err)
	}
}

func (h *Handler) readError(err error) *uploadError {
	if isTooLarge(err) {
		return &uploadError{http.StatusRequestEntityTooLarge, h.tooLargeMessage()}
	}
	slog.Debug("malformed multipart body", "error", err)
	return &uploadError{http.StatusOK, msgNoFile}
}

// predictAndRecord scores the upload and appends a log record for
// successful predictions. A failed append is logged and ignored.
func (h *Handler) predictAndRecord(ctx context.Context, up *upload) prediction.Result {
	res := h.predictor.Predict(ctx, up.path)
	if !res.OK() {
		slog.Warn("prediction unavailable", "file", up.filename, "status", res.Status.String())
		return res
	}

	slog.Info("prediction", "file", up.filename, "emotion", res.Label, "confidence", res.Confidence)

	rec := &store.Prediction{
		UserName:         up.userName,
		ImageFilename:    up.filename,
		PredictedEmotion: res.Label,
		ConfidenceScore:  res.Confidence,
	}
	if err := h.records.Append(ctx, rec); err != nil {
		slog.Error("failed to record prediction", "file", up.filename, "error", err)
	}
	return res
}

func (h *Handler) allowedFile(filename string) bool {
	return h.allowed[Extension(filename)]
}

func (h *Handler) invalidTypeMessage() string {
	exts := make([]string, len(h.opts.AllowedExtensions))
	for i, ext := range h.opts.AllowedExtensions {
		exts[i] = strings.ToUpper(ext)
	}
	return "Invalid file type. Please upload an image (" + strings.Join(exts, ", ") + ")"
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File too large (max %d MB)", h.opts.MaxUploadBytes>>20)
}

func (h *Handler) render(c *gin.Context, status int, p page) {
	p.ModelLoaded = h.predictor.ModelLoaded()
	c.HTML(status, "index.html", p)
}

func imageURL(filename string) string {
	return uploadsURLPath + "/" + filename
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
