package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"memo/internal/handlers/dto"
	"memo/internal/logger"
	"memo/internal/middleware"
	"memo/internal/models/task"

	"github.com/go-chi/chi/v5"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

type TaskHandler struct {
	TaskService TaskService
	clk         clock.Clock
}

func NewTaskHandler(taskService TaskService, clk clock.Clock) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
		clk:         clk,
	}
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	if err := s.TaskService.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: Сервис недоступен", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("service", "memo"))
		return
	}

	responseWithJSON(w, http.StatusOK,
		toPayload("status", "ok"),
		toPayload("service", "memo"),
		toPayload("time", s.clk.Now().UTC()))
}

func (s *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		badQuery(w, r, "page", err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		badQuery(w, r, "limit", err)
		return
	}
	completed, err := queryBool(r, "completed")
	if err != nil {
		badQuery(w, r, "completed", err)
		return
	}

	var tasks []*task.Task
	q := r.URL.Query()
	if query := strings.TrimSpace(q.Get("q")); query != "" && q.Get("category") == "" && q.Get("tag") == "" && completed == nil {
		tasks, err = s.TaskService.SearchTasks(r.Context(), userID, query, page, limit)
	} else {
		tasks, err = s.TaskService.ListTasks(r.Context(), userID, task.Filter{
			Category:  q.Get("category"),
			Tag:       q.Get("tag"),
			Completed: completed,
			Query:     q.Get("q"),
			Page:      page,
			Limit:     limit,
		})
	}
	if err != nil {
		handleError(w, r, err, "list_tasks")
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)))

	responseWithJSON(w, http.StatusOK,
		toPayload("tasks", dto.FromTaskList(tasks, s.clk.Now())),
		toPayload("page", page))
}

func (s *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request dto.CreateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	created, err := s.TaskService.CreateTask(r.Context(), userID, request.Options()...)
	if err != nil {
		handleError(w, r, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", created.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithJSON(w, http.StatusCreated, toPayload("task", dto.FromTask(created, s.clk.Now())))
}

func (s *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	t, err := s.TaskService.GetTask(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err, "get_task")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(t, s.clk.Now())))
}

// PatchTask меняет только переданные поля; version > 0 требует совпадения версии.
func (s *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request dto.UpdateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	opts := request.Options()
	if len(opts) == 0 {
		responseWithError(w, http.StatusBadRequest, "нет полей для обновления")
		return
	}

	updated, err := s.TaskService.UpdateTask(r.Context(), userID, chi.URLParam(r, "id"), request.Version, opts...)
	if err != nil {
		handleError(w, r, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("task_id", updated.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.clk.Now())))
}

func (s *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.TaskService.DeleteTask(r.Context(), userID, id); err != nil {
		handleError(w, r, err, "delete_task")
		return
	}

	logger.Info("HTTP_OUT: Задача удалена", zap.String("task_id", id))
	responseNoContent(w)
}

func (s *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	s.setCompleted(w, r, true)
}

func (s *TaskHandler) ReopenTask(w http.ResponseWriter, r *http.Request) {
	s.setCompleted(w, r, false)
}

func (s *TaskHandler) setCompleted(w http.ResponseWriter, r *http.Request, completed bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	updated, err := s.TaskService.SetCompleted(r.Context(), userID, chi.URLParam(r, "id"), completed)
	if err != nil {
		handleError(w, r, err, "set_completed")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.clk.Now())))
}

func (s *TaskHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	categories, err := s.TaskService.ListCategories(r.Context(), userID)
	if err != nil {
		handleError(w, r, err, "list_categories")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("categories", nonNil(categories)))
}

func (s *TaskHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	tags, err := s.TaskService.ListTags(r.Context(), userID)
	if err != nil {
		handleError(w, r, err, "list_tags")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("tags", nonNil(tags)))
}

// UploadAttachment читает multipart-поле file потоком, не буферизуя файл целиком.
func (s *TaskHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if !checkContentType(r, "multipart/form-data") {
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть multipart/form-data")
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			responseWithError(w, http.StatusBadRequest, "поле file не передано")
			return
		}
		if err != nil {
			logger.Warn("HTTP: Ошибка чтения multipart", zap.Error(err))
			responseWithError(w, http.StatusBadRequest, "неверное тело запроса")
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		att, err := s.TaskService.AddAttachment(r.Context(), userID, chi.URLParam(r, "id"),
			part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		if err != nil {
			handleError(w, r, err, "add_attachment")
			return
		}

		logger.Info("HTTP_OUT: Вложение загружено",
			zap.String("attachment_id", att.ID),
			zap.Int64("size", att.Size),
			zap.Duration("ms", time.Since(start)))

		responseWithJSON(w, http.StatusCreated, toPayload("attachment", dto.FromAttachment(*att)))
		return
	}
}

func (s *TaskHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	att, content, err := s.TaskService.OpenAttachment(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "attID"))
	if err != nil {
		handleError(w, r, err, "open_attachment")
		return
	}
	defer content.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	if att.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content); err != nil {
		logger.Warn("HTTP: Передача вложения прервана",
			zap.String("attachment_id", att.ID),
			zap.Error(err))
	}
}

func (s *TaskHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := s.TaskService.RemoveAttachment(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "attID")); err != nil {
		handleError(w, r, err, "remove_attachment")
		return
	}
	responseNoContent(w)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		responseWithError(w, http.StatusUnauthorized, "требуется авторизация")
		return "", false
	}
	return userID, true
}

func badQuery(w http.ResponseWriter, r *http.Request, name string, err error) {
	logger.Warn("HTTP: Ошибка получения параметра",
		zap.String("query", name),
		zap.Error(err),
		zap.String("client_ip", r.RemoteAddr))

	responseWithError(w, http.StatusBadRequest, "неверное значение "+name)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
