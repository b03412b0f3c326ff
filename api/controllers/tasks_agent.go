package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sealtrack/sealtrack-backend/api/middleware"
	"github.com/sealtrack/sealtrack-backend/api/responses"
	"github.com/sealtrack/sealtrack-backend/api/validators"
	"github.com/sealtrack/sealtrack-backend/internal/tasks"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
)

// AgentListTasks returns every task assigned to the authenticated agent.
func AgentListTasks(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMine(r.Context(), agentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// AgentGetTask returns one of the agent's assigned tasks.
func AgentGetTask(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		taskID, err := pathUUID(r, "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.GetForAgent(r.Context(), agentID, taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, task)
	}
}

// AgentConfirmPickup records the pack handover at the source location.
func AgentConfirmPickup(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return confirmHandler(svc.ConfirmPickup, logg)
}

// AgentConfirmDelivery records the pack handover at the destination.
func AgentConfirmDelivery(svc *tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return confirmHandler(svc.ConfirmDelivery, logg)
}

func confirmHandler(confirm func(ctx context.Context, agentID, taskID uuid.UUID, req tasks.ConfirmRequest) (*tasks.TaskDTO, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		taskID, err := pathUUID(r, "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body tasks.ConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.ClientIP = middleware.ClientIP(r)

		task, err := confirm(r.Context(), agentID, taskID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, task)
	}
}
