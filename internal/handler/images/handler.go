package images

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/service/imaging"
	"github.com/zhouzirui/implantai/backend/pkg/utils"
)

const (
	// FormField is the multipart field carrying picked image files.
	FormField = "images"
	// MaxUploadBytes bounds a multipart upload.
	MaxUploadBytes = 32 << 20
)

// Handler 图片预处理的HTTP处理器
type Handler struct {
	opts   imaging.Options
	logger *zap.Logger
}

// New 创建图片处理器
func New(opts imaging.Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{opts: opts, logger: logger.Named("images")}
}

// RegisterRoutes 注册图片相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/images", h.handlePreprocess)
}

// ImageView is one preprocessed image as returned to clients.
type ImageView struct {
	Name         string `json:"name"`
	DataURL      string `json:"dataUrl"`
	MIMEType     string `json:"mimeType"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Bytes        int    `json:"bytes"`
	SourceFormat string `json:"sourceFormat"`
}

// FileErrorView reports a dropped file.
type FileErrorView struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// BatchView is the partial-success outcome of a preprocessing run.
type BatchView struct {
	Images []ImageView     `json:"images"`
	Errors []FileErrorView `json:"errors,omitempty"`
}

// NewBatchView converts a preprocessing batch for JSON output.
func NewBatchView(batch imaging.Batch) BatchView {
	view := BatchView{Images: make([]ImageView, 0, len(batch.Results))}
	for _, res := range batch.Results {
		view.Images = append(view.Images, ImageView{
			Name:         res.Name,
			DataURL:      res.Image.DataURL(),
			MIMEType:     res.Image.MIMEType,
			Width:        res.Width,
			Height:       res.Height,
			Bytes:        len(res.Image.Data),
			SourceFormat: res.SourceFormat,
		})
	}
	for _, fe := range batch.Errors {
		view.Errors = append(view.Errors, FileErrorView{Name: fe.Name, Error: fe.Err.Error()})
	}
	return view
}

// FilesFromForm wraps the uploaded files of field for PreprocessAll.
func FilesFromForm(form *multipart.Form, field string) []imaging.File {
	if form == nil {
		return nil
	}
	headers := form.File[field]
	files := make([]imaging.File, 0, len(headers))
	for _, header := range headers {
		files = append(files, imaging.File{
			Name: header.Filename,
			Open: func() (io.ReadCloser, error) { return header.Open() },
		})
	}
	return files
}

// handlePreprocess 对上传的图片进行缩放与重编码
func (h *Handler) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := FilesFromForm(r.MultipartForm, FormField)
	if len(files) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "at least one image file is required")
		return
	}

	batch := imaging.PreprocessAll(files, h.opts)
	for _, fe := range batch.Errors {
		h.logger.Warn("image dropped", zap.String("file", fe.Name), zap.Error(fe.Err))
	}

	status := http.StatusOK
	if len(batch.Results) == 0 {
		status = http.StatusBadRequest
	}
	utils.RespondJSON(w, status, NewBatchView(batch))
}
