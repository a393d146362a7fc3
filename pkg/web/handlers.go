// Package web exposes the workflow engine over a REST API.
package web

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/netvariant/moqui-workflow/pkg/definition"
	"github.com/netvariant/moqui-workflow/pkg/engine"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/registry"
)

type APIHandlers struct {
	engine    *engine.Engine
	validator *validator.Validate
	registry  *registry.Registry
}

func NewAPIHandlers(
	engine *engine.Engine,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
		registry:  registry,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.SaveWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Post("/:id/disable", h.DisableWorkflow)
	w.Post("/:id/enable", h.EnableWorkflow)
	w.Get("/:id/variables", h.GetWorkflowVariables)
	w.Post("/:id/variables", h.CreateWorkflowVariable)
	w.Get("/:id/initiators", h.GetInitiators)
	w.Post("/:id/initiators", h.CreateInitiator)

	router.Post("/initiators/:id/expire", h.ExpireInitiator)

	i := router.Group("/instances")
	i.Get("/", h.GetInstances)
	i.Post("/", h.CreateInstance)
	i.Get("/:id", h.GetInstance)
	i.Post("/:id/start", h.StartInstance)
	i.Post("/:id/suspend", h.SuspendInstance)
	i.Post("/:id/resume", h.ResumeInstance)
	i.Post("/:id/abort", h.AbortInstance)
	i.Put("/:id/variables/:variableId", h.UpdateVariable)

	t := router.Group("/tasks")
	t.Get("/", h.GetTasks)
	t.Get("/count", h.CountTasks)
	t.Patch("/:id", h.UpdateTask)

	router.Post("/sweeps", h.Sweep)
	router.Post("/reminders", h.SendReminders)
	router.Get("/services", h.GetServices)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.engine.ListWorkflows(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.engine.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(wf)
}

// SaveWorkflow stores a definition sent as JSON, or as YAML when the request says so.
func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	var (
		wf  *models.Workflow
		err error
	)

	if isYAML(c.Get(fiber.HeaderContentType)) {
		wf, err = definition.Parse(c.Body())
		if err != nil {
			return handleEngineError(c, err)
		}
	} else {
		wf = &models.Workflow{}
		if err := c.Bind().JSON(wf); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.engine.SaveWorkflow(c.Context(), wf); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

func isYAML(contentType string) bool {
	return strings.Contains(contentType, "yaml")
}

func (h *APIHandlers) DisableWorkflow(c fiber.Ctx) error {
	if err := h.engine.DisableWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableWorkflow(c fiber.Ctx) error {
	if err := h.engine.EnableWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowVariables(c fiber.Ctx) error {
	variables, err := h.engine.ListVariables(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(variables)
}

func (h *APIHandlers) CreateWorkflowVariable(c fiber.Ctx) error {
	var variable models.WorkflowVariable
	if err := c.Bind().JSON(&variable); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.CreateVariable(c.Context(), c.Params("id"), &variable); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(variable)
}

func (h *APIHandlers) GetInitiators(c fiber.Ctx) error {
	initiators, err := h.engine.ListInitiators(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(initiators)
}

func (h *APIHandlers) CreateInitiator(c fiber.Ctx) error {
	var req CreateInitiatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	initiator := &models.Initiator{
		WorkflowID:  c.Params("id"),
		UserGroupID: req.UserGroupID,
		FromDate:    req.FromDate,
		ThruDate:    req.ThruDate,
	}

	if err := h.engine.CreateInitiator(c.Context(), initiator); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(initiator)
}

func (h *APIHandlers) ExpireInitiator(c fiber.Ctx) error {
	initiator, err := h.engine.ExpireInitiator(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(initiator)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	instances, total, err := h.engine.ListInstances(c.Context(), engine.InstanceFilter{
		WorkflowID:      c.Query("workflow_id"),
		Status:          models.InstanceStatus(c.Query("status")),
		PrimaryKeyValue: c.Query("primary_key_value"),
		Limit:           page.Limit,
		Offset:          page.Offset,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   instances,
		"total_count": total,
		"pagination":  page,
	})
}

// CreateInstance creates a PENDING instance. With ?start=true it is started right away.
func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req engine.CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	inst, err := h.engine.CreateInstance(c.Context(), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	if start, _ := strconv.ParseBool(c.Query("start")); start {
		if err := h.engine.Start(c.Context(), inst.ID); err != nil {
			return handleEngineError(c, err)
		}

		return h.respondInstance(c, inst.ID, fiber.StatusCreated)
	}

	return c.Status(fiber.StatusCreated).JSON(inst)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	return h.respondInstance(c, c.Params("id"), fiber.StatusOK)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.Start(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return h.respondInstance(c, id, fiber.StatusOK)
}

func (h *APIHandlers) SuspendInstance(c fiber.Ctx) error {
	return h.instanceAction(c, h.engine.Suspend)
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	return h.instanceAction(c, h.engine.Resume)
}

func (h *APIHandlers) AbortInstance(c fiber.Ctx) error {
	return h.instanceAction(c, h.engine.Abort)
}

type instanceActionFunc func(ctx context.Context, instanceID, userID string) error

func (h *APIHandlers) instanceAction(c fiber.Ctx, action instanceActionFunc) error {
	var req ActionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	id := c.Params("id")

	if err := action(c.Context(), id, req.UserID); err != nil {
		return handleEngineError(c, err)
	}

	return h.respondInstance(c, id, fiber.StatusOK)
}

func (h *APIHandlers) respondInstance(c fiber.Ctx, id string, status int) error {
	view, err := h.engine.GetInstance(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(status).JSON(view)
}

func (h *APIHandlers) UpdateVariable(c fiber.Ctx) error {
	var req UpdateVariableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	variable, err := h.engine.UpdateVariable(c.Context(), c.Params("id"), c.Params("variableId"), req.Expression)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(variable)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	filter := taskFilter(c)
	filter.Limit = page.Limit
	filter.Offset = page.Offset
	filter.OrderBy = c.Query("sort_by")
	filter.Desc = c.Query("sort_order") == "desc"

	tasks, total, err := h.engine.FindTasks(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       tasks,
		"total_count": total,
		"pagination":  page,
	})
}

func (h *APIHandlers) CountTasks(c fiber.Ctx) error {
	count, err := h.engine.CountTasks(c.Context(), taskFilter(c))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"count": count})
}

func taskFilter(c fiber.Ctx) engine.TaskFilter {
	return engine.TaskFilter{
		AssignedUserID: c.Query("user_id"),
		Status:         models.TaskStatus(c.Query("status")),
		InstanceID:     c.Query("instance_id"),
	}
}

func (h *APIHandlers) UpdateTask(c fiber.Ctx) error {
	var req engine.UpdateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.TaskID = c.Params("id")

	task, err := h.engine.UpdateTask(c.Context(), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) Sweep(c fiber.Ctx) error {
	result, err := h.engine.SweepElapsed(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) SendReminders(c fiber.Ctx) error {
	sent, err := h.engine.SendReminders(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"sent": sent})
}

func (h *APIHandlers) GetServices(c fiber.Ctx) error {
	return c.JSON(h.registry.IDs())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.engine.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"message": "Workflow API is running",
	})
}

func parsePagination(c fiber.Ctx) (Pagination, error) {
	var page Pagination

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return page, err
		}

		page.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return page, err
		}

		page.Offset = offset
	}

	return page, nil
}
