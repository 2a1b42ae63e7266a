package handlers

import (
	"net/http"

	"memo/internal/handlers/dto"
	"memo/internal/logger"
	"memo/internal/reminder"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NotificationHandler - действия над показанными напоминаниями и
// внеочередной запуск цикла напоминаний.
type NotificationHandler struct {
	Notifications NotificationCenter
	Sync          ReminderSync
}

func NewNotificationHandler(notifications NotificationCenter, sync ReminderSync) NotificationHandler {
	return NotificationHandler{Notifications: notifications, Sync: sync}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("notifications", dto.FromNotifications(h.Notifications.List(userID))))
}

func (h *NotificationHandler) Done(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, reminder.ActionDone)
}

func (h *NotificationHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, reminder.ActionSnooze)
}

func (h *NotificationHandler) act(w http.ResponseWriter, r *http.Request, action reminder.Action) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if err := h.Notifications.Handle(r.Context(), userID, taskID, action); err != nil {
		handleError(w, r, err, "notification_"+string(action))
		return
	}

	logger.Info("HTTP_OUT: Действие с уведомлением выполнено",
		zap.String("task_id", taskID),
		zap.String("action", string(action)))
	responseNoContent(w)
}

func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.Notifications.Dismiss(r.Context(), userID, chi.URLParam(r, "taskID")); err != nil {
		handleError(w, r, err, "notification_dismiss")
		return
	}
	responseNoContent(w)
}

// SyncNow выполняет цикл напоминаний немедленно и возвращает его итог.
func (h *NotificationHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	res, err := h.Sync.Check(r.Context())
	if err != nil {
		handleError(w, r, err, "reminder_sync")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("sync", dto.FromCycle(res)))
}
