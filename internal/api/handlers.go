package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"Cloud_Animator/config"
	"Cloud_Animator/internal/task"
	"Cloud_Animator/pkg/database"
)

// APIHandlers 持有所有依赖
type APIHandlers struct {
	taskManager *task.Manager
	db          database.Store
}

// NewAPIHandlers 创建一个新的API处理器实例。db 可以为 nil，此时报告相关接口返回 503。
func NewAPIHandlers(tm *task.Manager, db database.Store) *APIHandlers {
	return &APIHandlers{
		taskManager: tm,
		db:          db,
	}
}

// --- 辅助函数 ---

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func (h *APIHandlers) requireStore(w http.ResponseWriter) bool {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "未配置目录数据库")
		return false
	}
	return true
}

// --- 任务处理器 ---

func (h *APIHandlers) HandleStartRenderTask(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Products []string `json:"products"`
		Years    []string `json:"years"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "无效的请求体: "+err.Error())
			return
		}
	}
	taskID, err := h.taskManager.StartRenderTask(payload.Products, payload.Years)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *APIHandlers) HandleGetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	status, err := h.taskManager.GetTaskStatus(taskID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// --- 报告处理器 ---

func (h *APIHandlers) HandleListReports(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, limit = database.NormalizePage(page, limit)

	reports, total, err := h.db.Reports().List(r.Context(), page, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取报告列表: "+err.Error())
		return
	}
	response := map[string]interface{}{
		"data": reports,
		"pagination": map[string]interface{}{
			"currentPage": page,
			"totalPages":  int(math.Ceil(float64(total) / float64(limit))),
			"totalItems":  total,
		},
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	product, year := chi.URLParam(r, "product"), chi.URLParam(r, "year")
	report, err := h.db.Reports().Get(r.Context(), product, year)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取报告: "+err.Error())
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "没有 "+product+"/"+year+" 的运行记录")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *APIHandlers) HandleListFrames(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	product, year := chi.URLParam(r, "product"), chi.URLParam(r, "year")
	report, frames, err := database.ListFramesByYear(r.Context(), h.db, product, year)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取帧列表: "+err.Error())
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "没有 "+product+"/"+year+" 的运行记录")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runId": report.RunID,
		"data":  frames,
	})
}

// --- 配置处理器 ---

// HandleGetConfig 返回当前生效的配置，数据库连接串不会输出。
func (h *APIHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	if config.C == nil {
		respondError(w, http.StatusServiceUnavailable, "配置尚未加载")
		return
	}
	respondJSON(w, http.StatusOK, config.C)
}
