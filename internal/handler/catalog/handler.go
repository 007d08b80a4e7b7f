package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/pkg/utils"
)

// ModelSelection reports which model the conversation currently requests.
type ModelSelection interface {
	SelectedModel() catalog.Model
}

// Handler 模型目录与快捷操作的HTTP处理器
type Handler struct {
	actions   catalog.ActionStore
	selection ModelSelection
}

// New 创建目录处理器
func New(actions catalog.ActionStore, selection ModelSelection) *Handler {
	return &Handler{
		actions:   actions,
		selection: selection,
	}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.handleListModels)
	r.Get("/actions", h.handleListActions)
}

type modelView struct {
	catalog.Config
	Concrete bool          `json:"concrete"`
	Resolves catalog.Model `json:"resolvesTo"`
	Selected bool          `json:"selected"`
}

// handleListModels 列出模型目录并标记当前选择
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	var selected catalog.Model
	if h.selection != nil {
		selected = h.selection.SelectedModel()
	}

	models := catalog.All()
	views := make([]modelView, 0, len(models))
	for _, m := range models {
		views = append(views, modelView{
			Config:   m.Config(),
			Concrete: m.IsConcrete(),
			Resolves: catalog.Resolve(m),
			Selected: m == selected,
		})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"models":   views,
		"selected": selected,
	})
}

// handleListActions 列出快捷操作，可按分类过滤
func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	category := catalog.Category(r.URL.Query().Get("category"))
	if category != "" && !catalog.ValidCategory(category) {
		utils.RespondError(w, http.StatusBadRequest, "unknown category")
		return
	}

	actions := h.actions.ListByCategory(category)
	if actions == nil {
		actions = []catalog.QuickAction{}
	}
	utils.RespondJSON(w, http.StatusOK, actions)
}
