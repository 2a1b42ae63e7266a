package handlers

import (
	"net/http"

	"memo/internal/logger"
	"memo/internal/middleware"
	"memo/internal/service"

	"go.uber.org/zap"
)

// handleError пишет ответ для любой ошибки сервиса: бизнес-ошибки отдаются
// с кодом и деталями, остальные по результату Classify без внутреннего текста.
func handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	if handleBusinessError(w, r, err) {
		return
	}

	outcome := service.Classify(err)
	statusCode := mapOutcomeToHTTP(outcome)
	requestID := middleware.GetRequestID(r.Context())

	if statusCode >= http.StatusInternalServerError {
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", operation),
			zap.String("request_id", requestID))
	} else {
		logger.Warn("HTTP: Операция не выполнена",
			zap.String("operation", operation),
			zap.String("outcome", outcome.String()),
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	responseWithJSON(w, statusCode,
		toPayload("error", outcome.String()),
		toPayload("message", service.StatusMessage(err)),
		toPayload("request_id", requestID),
	)
}

func handleBusinessError(w http.ResponseWriter, r *http.Request, err error) bool {
	businessErr, ok := service.AsBusinessError(err)
	if !ok {
		return false
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	logger.Warn("HTTP: Бизнес-ошибка",
		zap.String("error_code", businessErr.Code),
		zap.Int("http_status", statusCode),
		zap.String("request_id", middleware.GetRequestID(r.Context())))

	responseWithJSON(w, statusCode,
		toPayload("error", businessErr.Code),
		toPayload("message", businessErr.Message),
		toPayload("details", businessErr.Details),
	)
	return true
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeVersionConflict, service.CodeAlreadyExists:
		return http.StatusConflict
	case service.CodeInvalidCredentials, service.CodeUnauthorized:
		return http.StatusUnauthorized
	case service.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadRequest
	}
}

func mapOutcomeToHTTP(outcome service.Outcome) int {
	switch outcome {
	case service.OutcomeSuccess:
		return http.StatusOK
	case service.OutcomeNotFound:
		return http.StatusNotFound
	case service.OutcomeInvalid:
		return http.StatusBadRequest
	case service.OutcomeFailure:
		return http.StatusConflict
	case service.OutcomeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
