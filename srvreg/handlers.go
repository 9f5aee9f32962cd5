package srvreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// respond builds a JSON response envelope from any payload.
func respond(statusCode int, payload interface{}) *Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"failed to encode response"}`,
			Error:      err.Error(),
		}
	}
	return &Response{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// fail maps an engine error to its HTTP status and wraps it in a
// response envelope.
func fail(err error) *Response {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindInvalidState:
		status = http.StatusConflict
	}
	resp := respond(status, map[string]string{
		"error": err.Error(),
		"code":  engine.KindOf(err),
	})
	resp.Error = err.Error()
	return resp
}

func badRequest(message string) *Response {
	resp := respond(http.StatusBadRequest, map[string]string{
		"error": message,
		"code":  engine.KindValidation,
	})
	resp.Error = message
	return resp
}

func unauthorized(message string) *Response {
	resp := respond(http.StatusUnauthorized, map[string]string{"error": message})
	resp.Error = message
	return resp
}

// requireOwner resolves the X-User-Id header to a known user. Every
// route past the auth endpoints goes through it.
func (sr *ServiceRegistry) requireOwner(req *Request) (string, *Response) {
	ownerID := req.OwnerID()
	if ownerID == "" {
		return "", unauthorized("missing " + HeaderUserID + " header")
	}
	if _, err := sr.engine.GetUser(req.Context(), ownerID); err != nil {
		return "", unauthorized("unknown user")
	}
	return ownerID, nil
}

func decodeBody(req *Request, dst interface{}) error {
	if strings.TrimSpace(req.Body) == "" {
		return fmt.Errorf("request body is required")
	}
	return json.Unmarshal([]byte(req.Body), dst)
}

// ---- auth ----

// RegisterUserHandler creates a new user account
func (sr *ServiceRegistry) RegisterUserHandler(req *Request) (*Response, error) {
	var body struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	user, err := sr.engine.Register(req.Context(), body.FullName, body.Email, body.Password)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusCreated, map[string]interface{}{
		"message": "user registered",
		"user":    user,
	}), nil
}

// LoginHandler verifies credentials and returns the user
func (sr *ServiceRegistry) LoginHandler(req *Request) (*Response, error) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	user, err := sr.engine.Login(req.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidCredentials) {
			return unauthorized("invalid email or password"), nil
		}
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"user":    user,
	}), nil
}

// ProfileHandler returns the authenticated user
func (sr *ServiceRegistry) ProfileHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	user, err := sr.engine.GetUser(req.Context(), ownerID)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{"user": user}), nil
}

// ---- tasks ----

// ListTasksHandler lists the owner's tasks, optionally filtered by
// status, priority, or category_id query parameters
func (sr *ServiceRegistry) ListTasksHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var filter engine.TaskFilter
	if raw, ok := req.Query["status"]; ok && raw != "" {
		st := models.TaskStatus(raw)
		if !models.ValidStatus(st) {
			return badRequest("invalid status filter: " + raw), nil
		}
		filter.Status = &st
	}
	if raw, ok := req.Query["priority"]; ok && raw != "" {
		p := models.TaskPriority(raw)
		if !models.ValidPriority(p) {
			return badRequest("invalid priority filter: " + raw), nil
		}
		filter.Priority = &p
	}
	if raw, ok := req.Query["category_id"]; ok && raw != "" {
		filter.CategoryID = &raw
	}

	tasks, err := sr.engine.ListTasks(req.Context(), ownerID, filter)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	}), nil
}

type taskBody struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	CategoryID  *string  `json:"category_id"`
	Tags        []string `json:"tags"`
	Notes       string   `json:"notes"`
}

// CreateTaskHandler creates a task for the owner
func (sr *ServiceRegistry) CreateTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var body taskBody
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	task, err := sr.engine.CreateTask(req.Context(), ownerID, engine.CreateTaskInput{
		Title:       body.Title,
		Description: body.Description,
		Priority:    models.TaskPriority(body.Priority),
		Status:      models.TaskStatus(body.Status),
		CategoryID:  body.CategoryID,
		Tags:        body.Tags,
		Notes:       body.Notes,
	})
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusCreated, map[string]interface{}{
		"message": "task created",
		"task":    task,
	}), nil
}

// GetTaskHandler returns one task
func (sr *ServiceRegistry) GetTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	task, err := sr.engine.GetTask(req.Context(), ownerID, req.Params["id"])
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{"task": task}), nil
}

// UpdateTaskHandler applies a partial update; a status field carries
// the side effects of the target status
func (sr *ServiceRegistry) UpdateTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var body struct {
		Title       *string   `json:"title"`
		Description *string   `json:"description"`
		Priority    *string   `json:"priority"`
		Status      *string   `json:"status"`
		CategoryID  *string   `json:"category_id"`
		Tags        *[]string `json:"tags"`
		Notes       *string   `json:"notes"`
	}
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	in := engine.UpdateTaskInput{
		Title:       body.Title,
		Description: body.Description,
		CategoryID:  body.CategoryID,
		Tags:        body.Tags,
		Notes:       body.Notes,
	}
	if body.Priority != nil {
		p := models.TaskPriority(*body.Priority)
		in.Priority = &p
	}
	if body.Status != nil {
		st := models.TaskStatus(*body.Status)
		in.Status = &st
	}

	task, err := sr.engine.UpdateTask(req.Context(), ownerID, req.Params["id"], in)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message": "task updated",
		"task":    task,
	}), nil
}

// DeleteTaskHandler removes a task along with its sessions and links
func (sr *ServiceRegistry) DeleteTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	if err := sr.engine.DeleteTask(req.Context(), ownerID, req.Params["id"]); err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]string{"message": "task deleted"}), nil
}

// ---- task lifecycle ----

// StartTaskHandler makes the task the owner's single active task
func (sr *ServiceRegistry) StartTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	task, err := sr.engine.StartTask(req.Context(), ownerID, req.Params["id"])
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message": "task started",
		"task":    task,
	}), nil
}

// PauseTaskHandler pauses an in-progress task
func (sr *ServiceRegistry) PauseTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	task, err := sr.engine.PauseTask(req.Context(), ownerID, req.Params["id"])
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message": "task paused",
		"task":    task,
	}), nil
}

// FinishTaskHandler completes a task, closing any open session
func (sr *ServiceRegistry) FinishTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var body struct {
		Note string `json:"note"`
	}
	if strings.TrimSpace(req.Body) != "" {
		if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
			return badRequest("invalid request body: " + err.Error()), nil
		}
	}

	task, err := sr.engine.FinishTask(req.Context(), ownerID, req.Params["id"], body.Note)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message": "task completed",
		"task":    task,
	}), nil
}

// PauseAllHandler pauses every in-progress task the owner has
func (sr *ServiceRegistry) PauseAllHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	count, err := sr.engine.PauseAll(req.Context(), ownerID)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message":      "all tasks paused",
		"paused_count": count,
	}), nil
}

// ActiveTaskHandler returns the owner's active task, null when idle
func (sr *ServiceRegistry) ActiveTaskHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	task, err := sr.engine.ActiveTask(req.Context(), ownerID)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{"active_task": task}), nil
}

// TaskSessionsHandler lists a task's time sessions, newest first
func (sr *ServiceRegistry) TaskSessionsHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	sessions, err := sr.engine.Sessions(req.Context(), ownerID, req.Params["id"])
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	}), nil
}

// ---- links ----

// CreateLinkHandler attaches a reference URL to a task
func (sr *ServiceRegistry) CreateLinkHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var body struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	link, err := sr.engine.CreateLink(req.Context(), ownerID, req.Params["id"], body.URL, body.Title)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusCreated, map[string]interface{}{
		"message": "link added",
		"link":    link,
	}), nil
}

// ListLinksHandler lists a task's links
func (sr *ServiceRegistry) ListLinksHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	links, err := sr.engine.ListLinks(req.Context(), ownerID, req.Params["id"])
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"links": links,
		"count": len(links),
	}), nil
}

// DeleteLinkHandler removes a link
func (sr *ServiceRegistry) DeleteLinkHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	if err := sr.engine.DeleteLink(req.Context(), ownerID, req.Params["id"]); err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]string{"message": "link deleted"}), nil
}

// ---- categories ----

// ListCategoriesHandler lists the owner's categories
func (sr *ServiceRegistry) ListCategoriesHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	categories, err := sr.engine.ListCategories(req.Context(), ownerID)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	}), nil
}

// CreateCategoryHandler creates a category; names are unique per owner
func (sr *ServiceRegistry) CreateCategoryHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var body struct {
		Name        string `json:"name"`
		Color       string `json:"color"`
		Description string `json:"description"`
	}
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	category, err := sr.engine.CreateCategory(req.Context(), ownerID, engine.CategoryInput{
		Name:        body.Name,
		Color:       body.Color,
		Description: body.Description,
	})
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusCreated, map[string]interface{}{
		"message":  "category created",
		"category": category,
	}), nil
}

// UpdateCategoryHandler applies a partial category update
func (sr *ServiceRegistry) UpdateCategoryHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	var body struct {
		Name        *string `json:"name"`
		Color       *string `json:"color"`
		Description *string `json:"description"`
	}
	if err := decodeBody(req, &body); err != nil {
		return badRequest("invalid request body: " + err.Error()), nil
	}

	category, err := sr.engine.UpdateCategory(req.Context(), ownerID, req.Params["id"], engine.UpdateCategoryInput{
		Name:        body.Name,
		Color:       body.Color,
		Description: body.Description,
	})
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]interface{}{
		"message":  "category updated",
		"category": category,
	}), nil
}

// DeleteCategoryHandler removes a category that no task references
func (sr *ServiceRegistry) DeleteCategoryHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	if err := sr.engine.DeleteCategory(req.Context(), ownerID, req.Params["id"]); err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, map[string]string{"message": "category deleted"}), nil
}

// ---- reports ----

// reportDate parses the optional date query parameter, defaulting to
// the current day.
func reportDate(req *Request) (time.Time, error) {
	raw, ok := req.Query["date"]
	if !ok || raw == "" {
		return time.Now(), nil
	}
	return time.Parse("2006-01-02", raw)
}

// DailyReportHandler summarizes one day of completions and tracked time
func (sr *ServiceRegistry) DailyReportHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	date, err := reportDate(req)
	if err != nil {
		return badRequest("invalid date, expected YYYY-MM-DD"), nil
	}
	daily, err := sr.aggregator.Daily(req.Context(), ownerID, date)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, daily), nil
}

// WeeklyReportHandler summarizes the Monday..Sunday week containing the
// requested date
func (sr *ServiceRegistry) WeeklyReportHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	date, err := reportDate(req)
	if err != nil {
		return badRequest("invalid date, expected YYYY-MM-DD"), nil
	}
	weekly, err := sr.aggregator.Weekly(req.Context(), ownerID, date)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, weekly), nil
}

// StatsHandler returns completion statistics across all of the owner's
// tasks
func (sr *ServiceRegistry) StatsHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}
	stats, err := sr.aggregator.Stats(req.Context(), ownerID)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, stats), nil
}

// ExportHandler dumps the owner's data as JSON, or as CSV when
// format=csv is requested
func (sr *ServiceRegistry) ExportHandler(req *Request) (*Response, error) {
	ownerID, deny := sr.requireOwner(req)
	if deny != nil {
		return deny, nil
	}

	if req.Query["format"] == "csv" {
		csvBytes, err := sr.aggregator.ExportCSV(req.Context(), ownerID)
		if err != nil {
			return fail(err), nil
		}
		return &Response{
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":        "text/csv",
				"Content-Disposition": `attachment; filename="timetrack-export.csv"`,
			},
			Body: string(csvBytes),
		}, nil
	}

	data, err := sr.aggregator.Export(req.Context(), ownerID)
	if err != nil {
		return fail(err), nil
	}
	return respond(http.StatusOK, data), nil
}
