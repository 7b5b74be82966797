package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/rplanner/internal"
	"github.com/starford/rplanner/internal/client"
	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/editor"
	pkgconfig "github.com/starford/rplanner/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// newClient builds the sync client from the client section of the config.
func newClient(cmd *cli.Command) (*client.Client, *internal.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	slog.SetDefault(logger)

	c := client.New(cfg.Client.BaseURL,
		client.WithToken(cfg.Client.Token),
		client.WithTimeout(cfg.Client.Timeout),
		client.WithLogger(logger))
	return c, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// intArgs parses the first n positional arguments as integers.
func intArgs(cmd *cli.Command, names ...string) ([]int64, error) {
	if cmd.Args().Len() < len(names) {
		return nil, fmt.Errorf("usage: %s %s", cmd.Name, cmd.ArgsUsage)
	}
	out := make([]int64, len(names))
	for i, name := range names {
		v, err := strconv.ParseInt(cmd.Args().Get(i), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, cmd.Args().Get(i), err)
		}
		out[i] = v
	}
	return out, nil
}

func notesList(ctx context.Context, cmd *cli.Command) error {
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	notes, err := c.ListNotes(ctx)
	if err != nil {
		return err
	}
	return printJSON(notes)
}

func notesAdd(ctx context.Context, cmd *cli.Command) error {
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	n := document.New(document.Date(time.Now()))
	if text := cmd.Args().First(); text != "" {
		n.Content = []document.Fragment{document.Text(text)}
	}
	id, err := c.AddNote(ctx, n)
	if err != nil {
		return err
	}
	return printJSON(map[string]document.NoteID{"note_id": id})
}

func notesDelete(ctx context.Context, cmd *cli.Command) error {
	args, err := intArgs(cmd, "note id")
	if err != nil {
		return err
	}
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	return c.DeleteNote(ctx, document.NoteID(args[0]))
}

func notesInsertImage(ctx context.Context, cmd *cli.Command) error {
	args, err := intArgs(cmd, "note id", "fragment number", "offset")
	if err != nil {
		return err
	}
	image := cmd.Args().Get(3)
	if image == "" {
		return fmt.Errorf("usage: %s %s", cmd.Name, cmd.ArgsUsage)
	}
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	return c.InsertImage(ctx, document.NoteID(args[0]), int(args[1]), int(args[2]), image)
}

func notesDeleteFragment(ctx context.Context, cmd *cli.Command) error {
	args, err := intArgs(cmd, "note id", "fragment number")
	if err != nil {
		return err
	}
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	return c.DeleteFragment(ctx, document.NoteID(args[0]), int(args[1]))
}

// notesSetText edits one text fragment through an editor session, the same
// path interactive edits take, and flushes it immediately.
func notesSetText(ctx context.Context, cmd *cli.Command) error {
	args, err := intArgs(cmd, "note id", "fragment number")
	if err != nil {
		return err
	}
	if cmd.Args().Len() < 3 {
		return fmt.Errorf("usage: %s %s", cmd.Name, cmd.ArgsUsage)
	}
	c, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}
	session := editor.New(c,
		editor.WithThreshold(cfg.Client.FlushAfterTicks),
		editor.WithLogger(slog.Default()))
	defer session.Close()

	id := document.NoteID(args[0])
	if err := session.Refresh(ctx); err != nil {
		return err
	}
	if err := session.Input(id, int(args[1]), cmd.Args().Get(2)); err != nil {
		return err
	}
	return session.Flush(ctx, id)
}

// notesEdit appends lines read from stdin to one text fragment. The session
// ticks at the configured period and flushes once input has been idle for
// the configured number of ticks.
func notesEdit(ctx context.Context, cmd *cli.Command) error {
	args, err := intArgs(cmd, "note id", "fragment number")
	if err != nil {
		return err
	}
	c, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}
	session := editor.New(c,
		editor.WithThreshold(cfg.Client.FlushAfterTicks),
		editor.WithLogger(slog.Default()))
	defer session.Close()

	if err := session.Refresh(ctx); err != nil {
		return err
	}
	return session.EditLines(ctx, os.Stdin, document.NoteID(args[0]), int(args[1]), cfg.Client.Tick)
}

func notesSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return fmt.Errorf("usage: %s %s", cmd.Name, cmd.ArgsUsage)
	}
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	results, err := c.Search(ctx, query, 0)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func imagesList(ctx context.Context, cmd *cli.Command) error {
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	names, err := c.ListImages(ctx)
	if err != nil {
		return err
	}
	return printJSON(names)
}

func imagesUpload(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return fmt.Errorf("usage: %s %s", cmd.Name, cmd.ArgsUsage)
	}
	name := cmd.Args().Get(1)
	if name == "" {
		name = filepath.Base(file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	info, err := c.UploadImage(ctx, name, data)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func main() {
	cmd := &cli.Command{
		Name:   "rplanner",
		Usage:  "Notes made of text and inline images, served over HTTP and MCP",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:  "notes",
				Usage: "Manage notes on a running server",
				Commands: []*cli.Command{
					{Name: "list", Usage: "Print every note", Action: notesList},
					{Name: "add", Usage: "Create a note", ArgsUsage: "[text]", Action: notesAdd},
					{Name: "delete", Usage: "Delete a note", ArgsUsage: "<note-id>", Action: notesDelete},
					{
						Name:      "insert-image",
						Usage:     "Split a text fragment around an image",
						ArgsUsage: "<note-id> <fragment> <offset> <image>",
						Action:    notesInsertImage,
					},
					{
						Name:      "delete-fragment",
						Usage:     "Delete one fragment of a note",
						ArgsUsage: "<note-id> <fragment>",
						Action:    notesDeleteFragment,
					},
					{
						Name:      "set-text",
						Usage:     "Replace the text of one fragment",
						ArgsUsage: "<note-id> <fragment> <text>",
						Action:    notesSetText,
					},
					{
						Name:      "edit",
						Usage:     "Append lines from stdin to a text fragment, flushing when input pauses",
						ArgsUsage: "<note-id> <fragment>",
						Action:    notesEdit,
					},
					{Name: "search", Usage: "Search note text", ArgsUsage: "<query>", Action: notesSearch},
				},
			},
			{
				Name:  "images",
				Usage: "Manage images on a running server",
				Commands: []*cli.Command{
					{Name: "list", Usage: "Print the image names", Action: imagesList},
					{Name: "upload", Usage: "Upload an image file", ArgsUsage: "<file> [name]", Action: imagesUpload},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
