package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/checktick/internal"
	"github.com/starford/checktick/internal/board"
	"github.com/starford/checktick/internal/models"
	"github.com/starford/checktick/internal/remote"
	"github.com/starford/checktick/internal/view"
	"github.com/starford/checktick/internal/watcher"
)

type session struct {
	cfg    *internal.Config
	logger *slog.Logger
	client *remote.Client
}

// connect loads the client config and dials the server. Logs go to stderr
// so stdout stays clean for command output.
func connect(cmd *cli.Command) (*session, error) {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(cfg, os.Stderr)
	client, err := internal.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, client: client}, nil
}

func (s *session) tasks(ctx context.Context) (*board.TaskList, error) {
	list := board.NewTaskList(s.client.Tasks(),
		board.WithLogger(s.logger),
		board.WithTimeout(s.cfg.Client.RequestTimeout))
	if err := list.Load(ctx); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *session) notes(ctx context.Context) (*board.NoteBoard, error) {
	b := board.NewNoteBoard(s.client.Notes(), s.client.Edges(),
		board.WithLogger(s.logger),
		board.WithTimeout(s.cfg.Client.RequestTimeout),
		board.WithTypingDelay(s.cfg.Client.TypingDelay))
	if err := b.Load(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func arg(cmd *cli.Command, i int, name string) (string, error) {
	v := cmd.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return v, nil
}

func intArg(cmd *cli.Command, i int, name string) (int, error) {
	v, err := arg(cmd, i, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("argument <%s>: %w", name, err)
	}
	return n, nil
}

func tasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List and edit tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks in display order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Usage: "Title substring"},
					&cli.StringFlag{Name: "category", Value: view.All},
					&cli.StringFlag{Name: "priority", Value: view.All},
					&cli.StringFlag{Name: "status", Value: view.All, Usage: "completed, pending or all"},
					&cli.StringFlag{Name: "sort", Value: view.SortOrder, Usage: "order, due_date or priority"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
				Action: listTasks,
			},
			{
				Name:      "add",
				Usage:     "Add a task",
				ArgsUsage: "<title>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "priority", Value: models.PriorityMedium},
					&cli.StringFlag{Name: "category", Value: models.CategoryPersonal},
					&cli.StringFlag{Name: "due", Usage: "Due date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "recurring", Usage: "daily, weekly or monthly"},
				},
				Action: addTask,
			},
			{
				Name:      "done",
				Usage:     "Toggle a task's completion",
				ArgsUsage: "<task_id>",
				Action:    toggleTask,
			},
			{
				Name:      "rm",
				Usage:     "Delete a task",
				ArgsUsage: "<task_id>",
				Action:    removeTask,
			},
			{
				Name:      "move",
				Usage:     "Move a task from one position to another",
				ArgsUsage: "<from> <to>",
				Action:    moveTask,
			},
		},
	}
}

func listTasks(ctx context.Context, cmd *cli.Command) error {
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	list, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	tasks := list.View(view.Filter{
		Search:   cmd.String("search"),
		Category: cmd.String("category"),
		Priority: cmd.String("priority"),
		Status:   cmd.String("status"),
	}, cmd.String("sort"))
	if cmd.Bool("json") {
		return printJSON(tasks)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tDONE\tPRIORITY\tCATEGORY\tDUE\tTITLE")
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", t.Order, t.ID, done, t.Priority, t.Category, t.DueDate, t.Title)
	}
	return tw.Flush()
}

func addTask(ctx context.Context, cmd *cli.Command) error {
	title, err := arg(cmd, 0, "title")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	list, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	t, err := list.Save(models.Task{
		Title:     title,
		Priority:  cmd.String("priority"),
		Category:  cmd.String("category"),
		DueDate:   cmd.String("due"),
		Recurring: cmd.String("recurring"),
	}).Wait(ctx)
	if err != nil {
		return err
	}
	return printJSON(t)
}

func toggleTask(ctx context.Context, cmd *cli.Command) error {
	id, err := arg(cmd, 0, "task_id")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	list, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	t, err := list.Toggle(id).Wait(ctx)
	if err != nil {
		return err
	}
	if err := list.Close(ctx); err != nil {
		return err
	}
	return printJSON(t)
}

func removeTask(ctx context.Context, cmd *cli.Command) error {
	id, err := arg(cmd, 0, "task_id")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	list, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	_, err = list.Remove(id).Wait(ctx)
	return err
}

func moveTask(ctx context.Context, cmd *cli.Command) error {
	from, err := intArg(cmd, 0, "from")
	if err != nil {
		return err
	}
	to, err := intArg(cmd, 1, "to")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	list, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	if _, err := list.Move(from, to).Wait(ctx); err != nil {
		return err
	}
	return printJSON(view.IDs(list.All()))
}

func notesCommand() *cli.Command {
	return &cli.Command{
		Name:  "notes",
		Usage: "Work with the sticky-note board",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Print notes and edges as JSON",
				Action: listNotes,
			},
			{
				Name:      "add",
				Usage:     "Add a note",
				ArgsUsage: "<content>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "x"},
					&cli.IntFlag{Name: "y"},
					&cli.StringFlag{Name: "color", Value: models.ColorYellow},
				},
				Action: addNote,
			},
			{
				Name:      "edit",
				Usage:     "Replace a note's content",
				ArgsUsage: "<note_id> <content>",
				Action:    editNote,
			},
			{
				Name:      "connect",
				Usage:     "Connect two notes",
				ArgsUsage: "<source_id> <target_id>",
				Action:    connectNotes,
			},
			{
				Name:      "watch",
				Usage:     "Sync a note's content from a local file until interrupted",
				ArgsUsage: "<note_id> <file>",
				Action:    watchNote,
			},
		},
	}
}

func listNotes(ctx context.Context, cmd *cli.Command) error {
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	b, err := s.notes(ctx)
	if err != nil {
		return err
	}
	return printJSON(struct {
		Notes []models.Note `json:"notes"`
		Edges []models.Edge `json:"edges"`
	}{b.Notes(), b.Edges()})
}

func addNote(ctx context.Context, cmd *cli.Command) error {
	content, err := arg(cmd, 0, "content")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	b, err := s.notes(ctx)
	if err != nil {
		return err
	}
	n, err := b.Add(content, int(cmd.Int("x")), int(cmd.Int("y"))).Wait(ctx)
	if err != nil {
		return err
	}
	if color := cmd.String("color"); color != n.Color {
		if n, err = b.SetColor(n.ID, color).Wait(ctx); err != nil {
			return err
		}
	}
	return printJSON(n)
}

func editNote(ctx context.Context, cmd *cli.Command) error {
	id, err := arg(cmd, 0, "note_id")
	if err != nil {
		return err
	}
	content, err := arg(cmd, 1, "content")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	b, err := s.notes(ctx)
	if err != nil {
		return err
	}
	op := b.EditContent(id, content)
	if err := b.Close(ctx); err != nil {
		return err
	}
	n, err := op.Wait(ctx)
	if err != nil {
		return err
	}
	return printJSON(n)
}

func connectNotes(ctx context.Context, cmd *cli.Command) error {
	source, err := arg(cmd, 0, "source_id")
	if err != nil {
		return err
	}
	target, err := arg(cmd, 1, "target_id")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	b, err := s.notes(ctx)
	if err != nil {
		return err
	}
	e, err := b.Connect(source, target).Wait(ctx)
	if err != nil {
		return err
	}
	return printJSON(e)
}

// watchNote pushes every save of file to the note. Saves inside the typing
// window coalesce into one write.
func watchNote(ctx context.Context, cmd *cli.Command) error {
	id, err := arg(cmd, 0, "note_id")
	if err != nil {
		return err
	}
	path, err := arg(cmd, 1, "file")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	b, err := s.notes(ctx)
	if err != nil {
		return err
	}
	if _, ok := b.Note(id); !ok {
		return fmt.Errorf("note %s not found", id)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	werr := watcher.Watch(ctx, path, s.logger, func(content string) {
		b.EditContent(id, content)
	})

	flushCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Client.RequestTimeout)
	defer cancel()
	if err := b.Close(flushCtx); err != nil {
		return err
	}
	return werr
}

func showStats(ctx context.Context, cmd *cli.Command) error {
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	st, err := s.client.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func pomodoroCommand() *cli.Command {
	return &cli.Command{
		Name:  "pomodoro",
		Usage: "Start and finish focus sessions",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "task", Usage: "Task ID to focus on"},
					&cli.DurationFlag{Name: "length", Value: 25 * time.Minute},
				},
				Action: startPomodoro,
			},
			{
				Name:      "done",
				Usage:     "Mark a session completed",
				ArgsUsage: "<session_id>",
				Action:    completePomodoro,
			},
		},
	}
}

func startPomodoro(ctx context.Context, cmd *cli.Command) error {
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	p, err := s.client.StartPomodoro(ctx, cmd.String("task"), cmd.Duration("length"))
	if err != nil {
		return err
	}
	return printJSON(p)
}

func completePomodoro(ctx context.Context, cmd *cli.Command) error {
	id, err := arg(cmd, 0, "session_id")
	if err != nil {
		return err
	}
	s, err := connect(cmd)
	if err != nil {
		return err
	}
	p, err := s.client.CompletePomodoro(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(p)
}
