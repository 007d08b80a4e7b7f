package chat

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/handler/images"
	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	chatService "github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/imaging"
	"github.com/zhouzirui/implantai/backend/pkg/utils"
)

// Handler 会话相关的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	imgOpts imaging.Options
	logger  *zap.Logger
}

// New 创建会话处理器
func New(chatSvc *chatService.Service, imgOpts imaging.Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		imgOpts: imgOpts,
		logger:  logger.Named("conversation"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversation", func(conv chi.Router) {
		conv.Get("/", h.handleGetConversation)
		conv.Delete("/", h.handleReset)
		conv.Post("/messages", h.handleSubmit)
		conv.Post("/actions/{actionID}", h.handleSubmitAction)
		conv.Put("/model", h.handleSelectModel)
	})
}

// ConversationView is the read model of the conversation.
type ConversationView struct {
	Turns []chat.Turn   `json:"turns"`
	Model catalog.Model `json:"model"`
	Busy  bool          `json:"busy"`
}

// SubmitView is returned for every accepted submission.
type SubmitView struct {
	User        chat.Turn              `json:"user"`
	Reply       chat.Turn              `json:"reply"`
	Error       string                 `json:"error,omitempty"`
	ImageErrors []images.FileErrorView `json:"imageErrors,omitempty"`
}

type submitPayload struct {
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// handleGetConversation 返回完整会话
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, ConversationView{
		Turns: h.chatSvc.Turns(r.Context()),
		Model: h.chatSvc.SelectedModel(),
		Busy:  h.chatSvc.Busy(),
	})
}

// handleSubmit 提交一条消息，支持JSON(data URL)或multipart文件
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	text, imgs, imageErrors, err := h.readSubmission(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chatSvc.Submit(r.Context(), text, imgs)
	h.respondSubmit(w, result, imageErrors, err)
}

// handleSubmitAction 提交快捷操作
func (h *Handler) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")

	_, imgs, imageErrors, err := h.readSubmission(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chatSvc.SubmitAction(r.Context(), actionID, imgs)
	h.respondSubmit(w, result, imageErrors, err)
}

// handleSelectModel 切换模型
func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Model string `json:"model"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.chatSvc.SelectModel(r.Context(), payload.Model)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"model":      m,
		"resolvesTo": catalog.Resolve(m),
	})
}

// handleReset 重置会话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	greeting, err := h.chatSvc.Reset(r.Context())
	if err != nil {
		if errors.Is(err, chatService.ErrBusy) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, ConversationView{
		Turns: []chat.Turn{greeting},
		Model: h.chatSvc.SelectedModel(),
	})
}

func (h *Handler) respondSubmit(w http.ResponseWriter, result chatService.SubmitResult, imageErrors []images.FileErrorView, err error) {
	if err != nil {
		switch {
		case errors.Is(err, chatService.ErrEmptySubmission):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, chatService.ErrBusy):
			utils.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, chatService.ErrActionNotFound):
			utils.RespondError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("submission failed", zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "submission failed")
		}
		return
	}

	view := SubmitView{
		User:        result.User,
		Reply:       result.Reply,
		ImageErrors: imageErrors,
	}
	// 传输失败仍返回200，会话继续
	if result.Failure != nil {
		view.Error = string(result.Failure.Reason)
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

// readSubmission extracts text and images from a JSON or multipart body.
// Multipart files are preprocessed; files that fail are dropped and reported.
func (h *Handler) readSubmission(w http.ResponseWriter, r *http.Request) (string, []chat.Image, []images.FileErrorView, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.readMultipart(w, r)
	}

	var payload submitPayload
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		return "", nil, nil, err
	}

	imgs := make([]chat.Image, 0, len(payload.Images))
	for i, raw := range payload.Images {
		img, err := chat.ParseDataURL(raw)
		if err != nil {
			return "", nil, nil, fmt.Errorf("image %d: %w", i, err)
		}
		imgs = append(imgs, img)
	}
	return payload.Text, imgs, nil, nil
}

func (h *Handler) readMultipart(w http.ResponseWriter, r *http.Request) (string, []chat.Image, []images.FileErrorView, error) {
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxUploadBytes)
	if err := r.ParseMultipartForm(images.MaxUploadBytes); err != nil {
		return "", nil, nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	text := r.FormValue("text")
	files := images.FilesFromForm(r.MultipartForm, images.FormField)
	if len(files) == 0 {
		return text, nil, nil, nil
	}

	batch := imaging.PreprocessAll(files, h.imgOpts)
	imageErrors := images.NewBatchView(batch).Errors
	for _, fe := range batch.Errors {
		h.logger.Warn("image dropped", zap.String("file", fe.Name), zap.Error(fe.Err))
	}
	if len(batch.Results) == 0 && strings.TrimSpace(text) == "" {
		return "", nil, imageErrors, errors.New("no usable image in upload")
	}

	imgs := make([]chat.Image, 0, len(batch.Results))
	for _, res := range batch.Results {
		imgs = append(imgs, res.Image)
	}
	return text, imgs, imageErrors, nil
}
