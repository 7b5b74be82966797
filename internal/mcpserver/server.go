// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes rplanner notes to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/noteservice"
)

const (
	noteFormatURI      = "rplanner://note-format"
	defaultSearchLimit = 20
)

// Server wraps the MCP server with rplanner tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all rplanner tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"rplanner",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note id with its date and first line of text."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as plain text, with images as Markdown image links."),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("Id of the note")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note holding one text fragment. Returns the new note id."),
		mcp.WithString("text", mcp.Description("Initial text (defaults to the standard new-note text)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("replace_note_text",
		mcp.WithDescription("Replace the whole content of a note with a single text fragment. "+
			"Images in the note are dropped."),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("Id of the note")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
	), s.replaceNoteText)

	s.mcp.AddTool(mcp.NewTool("insert_image",
		mcp.WithDescription("Split a text fragment at a character offset and insert an image between the halves. "+
			"Read the note format via the "+noteFormatURI+" resource first."),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("Id of the note")),
		mcp.WithNumber("fragment_num", mcp.Required(), mcp.Description("Number of the text fragment to split")),
		mcp.WithNumber("char_offset", mcp.Required(), mcp.Description("Split offset in Unicode code points")),
		mcp.WithString("image_name", mcp.Required(), mcp.Description("File name of an uploaded image")),
	), s.insertImage)

	s.mcp.AddTool(mcp.NewTool("delete_fragment",
		mcp.WithDescription("Delete one fragment of a note, joining the text around it."),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("Id of the note")),
		mcp.WithNumber("fragment_num", mcp.Required(), mcp.Description("Number of the fragment to delete")),
	), s.deleteFragment)

	s.mcp.AddTool(mcp.NewTool("list_images",
		mcp.WithDescription("List the image file names that can be inserted into notes."),
	), s.listImages)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search the text fragments of every note."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Download an image from an http(s) URL or decode a base64 data URI and "+
			"store it in the image directory. Returns the stored name for insert_image."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI of the image")),
		mcp.WithString("filename", mcp.Description("Optional file name to store the image under")),
	), s.uploadImage)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format",
			mcp.WithResourceDescription("How notes are made of text and image fragments."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

type noteSummary struct {
	ID        document.NoteID `json:"id"`
	Date      string          `json:"date"`
	Fragments int             `json:"fragments"`
	Preview   string          `json:"preview"`
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.ListNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]noteSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, noteSummary{
			ID:        e.ID,
			Date:      e.Note.Date,
			Fragments: e.Note.Len(),
			Preview:   preview(e.Note),
		})
	}
	return jsonResult(out), nil
}

func preview(n document.Note) string {
	for _, f := range n.Content {
		if !f.IsText() {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(f.Value()), "\n")
		if line != "" {
			return line
		}
	}
	return ""
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.GetNote(ctx, document.NoteID(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("note %d: %v", id, err)), nil
	}
	return mcp.NewToolResultText(n.PlainText()), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", document.DefaultText)
	id, err := s.svc.CreateNote(ctx, document.Note{Content: []document.Fragment{document.Text(text)}})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", id)), nil
}

func (s *Server) replaceNoteText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.ReplaceText(ctx, document.NoteID(id), text); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %d", id)), nil
}

func (s *Server) insertImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	num, err := req.RequireInt("fragment_num")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	offset, err := req.RequireInt("char_offset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("image_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.InsertImage(ctx, document.NoteID(id), num, offset, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("inserted %s into note %d", name, id)), nil
}

func (s *Server) deleteFragment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	num, err := req.RequireInt("fragment_num")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteFragment(ctx, document.NoteID(id), num); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted fragment %d of note %d", num, id)), nil
}

func (s *Server) listImages(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.svc.ListImages(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(names) == 0 {
		return mcp.NewToolResultText("no images"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	results, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}
