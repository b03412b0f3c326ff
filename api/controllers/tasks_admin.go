package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sealtrack/sealtrack-backend/api/responses"
	"github.com/sealtrack/sealtrack-backend/api/validators"
	"github.com/sealtrack/sealtrack-backend/internal/locations"
	"github.com/sealtrack/sealtrack-backend/internal/tasks"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	pkgerrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/pagination"
)

// AdminCreateTask registers a new delivery task and assigns it to an agent.
func AdminCreateTask(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body tasks.CreateTaskRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.SealedPackCode = validators.SanitizeString(body.SealedPackCode, 64)
		body.SourceLocation = validators.SanitizeString(body.SourceLocation, 256)
		body.DestinationLocation = validators.SanitizeString(body.DestinationLocation, 256)

		task, err := svc.Create(r.Context(), actorID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, task)
	}
}

// AdminListTasks pages through tasks, optionally filtered by status, agent or exam type.
func AdminListTasks(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := taskListFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// AdminGetTask returns a single task by id.
func AdminGetTask(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := pathUUID(r, "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.Get(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, task)
	}
}

// AdminListTaskEvents returns the immutable event log for a task.
func AdminListTaskEvents(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := pathUUID(r, "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.ListEvents(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, events)
	}
}

// AdminTaskLocation returns the latest reported position for a task, if any.
func AdminTaskLocation(taskSvc *tasks.Service, locSvc *locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := pathUUID(r, "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := taskSvc.Get(r.Context(), taskID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := locSvc.Latest(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if snapshot == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no location reported yet"))
			return
		}

		responses.WriteSuccess(w, snapshot)
	}
}

func taskListFilter(r *http.Request) (tasks.ListFilter, error) {
	var filter tasks.ListFilter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseTaskStatus(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "unknown status filter").WithDetails(map[string]any{"field": "status"})
		}
		filter.Status = &status
	}

	if raw := strings.TrimSpace(query.Get("agent_id")); raw != "" {
		agentID, err := uuid.Parse(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "agent_id must be a UUID").WithDetails(map[string]any{"field": "agent_id"})
		}
		filter.AgentID = &agentID
	}

	if raw := strings.TrimSpace(query.Get("exam_type")); raw != "" {
		examType, err := enums.ParseExamType(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "unknown exam_type filter").WithDetails(map[string]any{"field": "exam_type"})
		}
		filter.ExamType = &examType
	}

	return filter, nil
}
