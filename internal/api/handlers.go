package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
	"github.com/liamgwallace/claude-web/internal/health"
	"github.com/liamgwallace/claude-web/internal/job"
	"github.com/liamgwallace/claude-web/internal/store"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

type createThreadRequest struct {
	Name string `json:"name"`
}

type sendMessageRequest struct {
	Message *string `json:"message"`
}

type saveFileRequest struct {
	Content *string `json:"content"`
}

type threadStatusResponse struct {
	Success bool `json:"success"`
	store.StatusRecord
}

type jobStatusResponse struct {
	Success bool `json:"success"`
	job.Snapshot
}

func (s *Server) report(c *fiber.Ctx) health.Report {
	if s.deps.Checker == nil {
		return health.Report{Ready: true, Checks: map[string]health.Status{}}
	}
	return s.deps.Checker.Report(c.UserContext())
}

// Liveness handles GET /health.
func (s *Server) Liveness(c *fiber.Ctx) error {
	r := s.report(c)
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": ServiceName,
		"checks":  r.Checks,
	})
}

// Readiness handles GET /readyz.
func (s *Server) Readiness(c *fiber.Ctx) error {
	r := s.report(c)
	if !r.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": r.Checks,
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "checks": r.Checks})
}

// ListProjects handles GET /projects.
func (s *Server) ListProjects(c *fiber.Ctx) error {
	projects, err := s.deps.Projects.List()
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"projects": projects,
		"count":    len(projects),
	})
}

// CreateProject handles POST /project/new.
func (s *Server) CreateProject(c *fiber.Ctx) error {
	var req createProjectRequest
	if err := decodeBody(c, &req); err != nil {
		return s.fail(c, err, nil)
	}
	if req.Name == "" {
		return badRequest(c, "Project name is required")
	}

	name, err := s.deps.Projects.Create(req.Name)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":       true,
		"project_name":  name,
		"original_name": req.Name,
	})
}

// DeleteProject handles DELETE /project/:project.
func (s *Server) DeleteProject(c *fiber.Ctx) error {
	project := c.Params("project")
	if err := s.deps.Projects.Delete(project); err != nil {
		return s.fail(c, err, fiber.Map{"project_name": project})
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      fmt.Sprintf("Project %s deleted successfully", project),
		"project_name": project,
	})
}

// ListThreads handles GET /project/:project/threads.
func (s *Server) ListThreads(c *fiber.Ctx) error {
	project := c.Params("project")
	threads, err := s.deps.Threads.List(project)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"project_name": project,
		"threads":      threads,
		"count":        len(threads),
	})
}

// CreateThread handles POST /project/:project/thread/new.
func (s *Server) CreateThread(c *fiber.Ctx) error {
	project := c.Params("project")
	var req createThreadRequest
	if err := decodeBody(c, &req); err != nil {
		return s.fail(c, err, nil)
	}

	threadID, err := s.deps.Threads.Create(project, req.Name)
	if err != nil {
		return s.fail(c, err, nil)
	}
	thread, err := s.deps.Threads.Get(project, threadID)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":      true,
		"project_name": project,
		"thread_id":    threadID,
		"name":         thread.Name,
		"created":      thread.Created,
	})
}

// DeleteThread handles DELETE /project/:project/thread/:thread.
func (s *Server) DeleteThread(c *fiber.Ctx) error {
	project, threadID := c.Params("project"), c.Params("thread")
	extra := fiber.Map{"project_name": project, "thread_id": threadID}
	if err := s.deps.Threads.Delete(project, threadID); err != nil {
		return s.fail(c, err, extra)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      fmt.Sprintf("Thread %s deleted successfully", threadID),
		"project_name": project,
		"thread_id":    threadID,
	})
}

// ThreadStatus handles GET /project/:project/thread/:thread/status. Missing
// targets are reported in the status field, not as HTTP errors.
func (s *Server) ThreadStatus(c *fiber.Ctx) error {
	rec := s.deps.Threads.Status(c.Params("project"), c.Params("thread"))
	return c.JSON(threadStatusResponse{Success: true, StatusRecord: rec})
}

// Messages handles GET /project/:project/thread/:thread/messages.
func (s *Server) Messages(c *fiber.Ctx) error {
	project, threadID := c.Params("project"), c.Params("thread")
	messages, err := s.deps.Threads.Messages(project, threadID)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"project_name": project,
		"thread_id":    threadID,
		"messages":     messages,
		"count":        len(messages),
	})
}

// SendMessage handles POST /project/:project/thread/:thread/message. The
// target is checked by the worker, so a missing thread yields a failed job.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	project, threadID := c.Params("project"), c.Params("thread")
	var req sendMessageRequest
	if err := decodeBody(c, &req); err != nil {
		return s.fail(c, err, nil)
	}
	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		return badRequest(c, "Message is required")
	}

	snap, err := s.deps.Engine.Submit(job.SubmitRequest{
		ProjectName: project,
		ThreadID:    threadID,
		Message:     *req.Message,
		RequestID:   requestID(c),
	})
	if err != nil {
		var extra fiber.Map
		if snap != nil {
			extra = fiber.Map{"job_id": snap.JobID}
		}
		return s.fail(c, err, extra)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":      true,
		"job_id":       snap.JobID,
		"project_name": project,
		"thread_id":    threadID,
		"status":       snap.Status,
	})
}

// JobStatus handles GET /status/:job.
func (s *Server) JobStatus(c *fiber.Ctx) error {
	snap, ok := s.deps.Engine.Get(c.Params("job"))
	if !ok {
		return s.fail(c, apperrors.NotFoundf("Job not found"), nil)
	}
	return c.JSON(jobStatusResponse{Success: true, Snapshot: *snap})
}

// ListJobs handles GET /jobs.
func (s *Server) ListJobs(c *fiber.Ctx) error {
	var q job.Query
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "Invalid query parameters")
	}
	jobs, total := s.deps.Engine.List(q)
	return c.JSON(fiber.Map{
		"success": true,
		"jobs":    jobs,
		"count":   len(jobs),
		"total":   total,
		"stats":   s.deps.Engine.Stats(),
	})
}

// FileTree handles GET /project/:project/files.
func (s *Server) FileTree(c *fiber.Ctx) error {
	project := c.Params("project")
	tree, err := s.deps.Files.Tree(project)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"project_name": project,
		"file_tree":    tree,
	})
}

// ReadFile handles GET /project/:project/file?path=.
func (s *Server) ReadFile(c *fiber.Ctx) error {
	project := c.Params("project")
	path := c.Query("path")
	if path == "" {
		return badRequest(c, "File path is required")
	}

	f, err := s.deps.Files.Read(project, path)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"project_name": project,
		"file_path":    path,
		"content":      f.Content,
		"language":     f.Language,
		"size":         f.Size,
	})
}

// SaveFile handles POST /project/:project/file/<path>/save.
func (s *Server) SaveFile(c *fiber.Ctx) error {
	project := c.Params("project")
	path, ok := strings.CutSuffix(c.Params("*"), "/save")
	if !ok || path == "" {
		return fiber.ErrNotFound
	}

	var req saveFileRequest
	if err := decodeBody(c, &req); err != nil {
		return s.fail(c, err, nil)
	}
	if req.Content == nil {
		return badRequest(c, "Content is required")
	}

	if err := s.deps.Files.Write(project, path, *req.Content); err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"project_name": project,
		"file_path":    path,
		"message":      fmt.Sprintf("File '%s' saved successfully", path),
	})
}
