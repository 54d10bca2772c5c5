// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes CheckTick task tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/checktick/internal/cache"
	"github.com/starford/checktick/internal/models"
	"github.com/starford/checktick/internal/store"
	"github.com/starford/checktick/internal/syncer"
	"github.com/starford/checktick/internal/view"
)

const formatURI = "checktick://task-format"

// Server wraps the MCP server with CheckTick tools.
type Server struct {
	mcp    *server.MCPServer
	repo   store.Repository
	logger *slog.Logger
}

// New creates a new MCP server with all task tools registered.
func New(repo store.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{repo: repo, logger: logger}

	s.mcp = server.NewMCPServer(
		"CheckTick",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks in display order, optionally filtered. "+
			"Filters accept 'all' as a wildcard."),
		mcp.WithString("search", mcp.Description("Case-insensitive title substring")),
		mcp.WithString("category", mcp.Description("Category to keep")),
		mcp.WithString("priority", mcp.Description("Priority to keep"), mcp.Enum(view.All, models.PriorityLow, models.PriorityMedium, models.PriorityHigh)),
		mcp.WithString("status", mcp.Description("completed or pending"), mcp.Enum(view.All, view.StatusCompleted, view.StatusPending)),
		mcp.WithString("sort", mcp.Description("order, due_date or priority"), mcp.Enum(view.SortOrder, view.SortDueDate, view.SortPriority)),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("search_tasks",
		mcp.WithDescription("Full-text search through task titles and descriptions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTasks)

	s.mcp.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task at the end of the list. Read the "+
			"get_task_format tool or the "+formatURI+" resource for allowed values."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Longer description")),
		mcp.WithString("priority", mcp.Enum(models.PriorityLow, models.PriorityMedium, models.PriorityHigh)),
		mcp.WithString("category", mcp.Description("personal, work, study, health or custom")),
		mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD")),
		mcp.WithString("recurring", mcp.Enum(models.RecurDaily, models.RecurWeekly, models.RecurMonthly)),
	), s.createTask)

	s.mcp.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task completed. Recurring tasks get their next occurrence."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	), s.completeTask)

	s.mcp.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	), s.deleteTask)

	s.mcp.AddTool(mcp.NewTool("move_task",
		mcp.WithDescription("Move a task to a zero-based position in the full list."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithNumber("position", mcp.Required(), mcp.Description("Target index, 0 is the top")),
	), s.moveTask)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Dashboard statistics: totals, streak, completion rate and weekly completions."),
	), s.getStats)

	s.mcp.AddTool(mcp.NewTool("get_task_format",
		mcp.WithDescription("Returns the task field reference."),
	), s.getTaskFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Task Format",
			mcp.WithResourceDescription("Task fields and their allowed values."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTaskFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := view.Filter{
		Search:   req.GetString("search", ""),
		Category: req.GetString("category", view.All),
		Priority: req.GetString("priority", view.All),
		Status:   req.GetString("status", view.All),
	}
	return jsonResult(view.Project(tasks, f, req.GetString("sort", view.SortOrder)))
}

func (s *Server) searchTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tasks, err := s.repo.SearchTasks(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tasks)
}

func (s *Server) createTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.repo.CreateTask(ctx, models.Task{
		Title:       title,
		Description: req.GetString("description", ""),
		Priority:    req.GetString("priority", ""),
		Category:    req.GetString("category", ""),
		DueDate:     req.GetString("due_date", ""),
		Recurring:   req.GetString("recurring", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

func (s *Server) completeTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, spawned, err := s.repo.UpdateTask(ctx, id, models.Patch{"completed": true})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(struct {
		Task models.Task  `json:"task"`
		Next *models.Task `json:"next_occurrence,omitempty"`
	}{t, spawned})
}

func (s *Server) deleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

// repoOrder adapts the repository to the order model's batch writer.
type repoOrder struct{ repo store.Repository }

func (r repoOrder) Reorder(ctx context.Context, items []models.OrderItem) error {
	return r.repo.ReorderTasks(ctx, items)
}

func (s *Server) moveTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireInt("position")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c := cache.New[string](tasks...)
	om := syncer.NewOrderModel(c, repoOrder{s.repo}, syncer.OrderConfig{Entity: "task", Logger: s.logger})
	om.Normalize()
	from := c.IndexOf(id)
	if from < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", id)), nil
	}
	list, err := om.Reorder(from, to).Wait(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view.IDs(list))
}

func (s *Server) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) getTaskFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TaskFormatContract), nil
}

func (s *Server) readTaskFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     TaskFormatContract,
		},
	}, nil
}
