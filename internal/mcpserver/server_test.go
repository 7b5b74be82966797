package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/noteservice"
	"github.com/starford/rplanner/internal/testutil"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testServer(t *testing.T) (*Server, *noteservice.Service) {
	t.Helper()
	_, images := testutil.TestImages(t)
	svc := noteservice.NewService(testutil.TestDB(t), images)
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "replace_note_text":
		result, err = srv.replaceNoteText(ctx, req)
	case "insert_image":
		result, err = srv.insertImage(ctx, req)
	case "delete_fragment":
		result, err = srv.deleteFragment(ctx, req)
	case "list_images":
		result, err = srv.listImages(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "upload_image":
		result, err = srv.uploadImage(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{"text": "hello\nworld"})
	if text := resultText(r); text != "created: 1" {
		t.Fatalf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]any{"note_id": 1})
	if text := resultText(r); text != "hello\nworld" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateNote_DefaultText(t *testing.T) {
	srv, svc := testServer(t)
	callTool(t, srv, "create_note", map[string]any{})

	n, err := svc.GetNote(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Content) != 1 || n.Content[0] != document.Text(document.DefaultText) {
		t.Errorf("content = %v", n.Content)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"note_id": 9})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestListNotes(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"text": "\n  first line\nsecond"})
	callTool(t, srv, "create_note", map[string]any{"text": "other"})

	r := callTool(t, srv, "list_notes", map[string]any{})
	var got []noteSummary
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(got) != 2 || got[0].Preview != "first line" || got[1].ID != 2 {
		t.Errorf("summaries = %+v", got)
	}
}

func TestReplaceNoteText(t *testing.T) {
	srv, svc := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"text": "old"})

	r := callTool(t, srv, "replace_note_text", map[string]any{"note_id": 1, "text": "new"})
	if r.IsError {
		t.Fatalf("replace: %s", resultText(r))
	}
	n, _ := svc.GetNote(context.Background(), 1)
	if n.PlainText() != "new" {
		t.Errorf("text = %q", n.PlainText())
	}

	r = callTool(t, srv, "replace_note_text", map[string]any{"note_id": 7, "text": "x"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestUploadInsertAndDeleteImage(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"text": "HelloWorld"})

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	r := callTool(t, srv, "upload_image", map[string]any{"url": uri, "filename": "cat.png"})
	if r.IsError {
		t.Fatalf("upload: %s", resultText(r))
	}
	var up uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &up); err != nil {
		t.Fatal(err)
	}
	if up.Name != "cat.png" || up.MarkdownImage != "![](/images/cat.png)" {
		t.Errorf("upload result = %+v", up)
	}

	if text := resultText(callTool(t, srv, "list_images", map[string]any{})); text != "cat.png" {
		t.Errorf("images = %q", text)
	}

	r = callTool(t, srv, "insert_image", map[string]any{
		"note_id": 1, "fragment_num": 0, "char_offset": 5, "image_name": "cat.png",
	})
	if r.IsError {
		t.Fatalf("insert: %s", resultText(r))
	}
	if text := resultText(callTool(t, srv, "read_note", map[string]any{"note_id": 1})); text != "Hello![](/images/cat.png)World" {
		t.Errorf("after insert = %q", text)
	}

	r = callTool(t, srv, "delete_fragment", map[string]any{"note_id": 1, "fragment_num": 1})
	if r.IsError {
		t.Fatalf("delete: %s", resultText(r))
	}
	if text := resultText(callTool(t, srv, "read_note", map[string]any{"note_id": 1})); text != "HelloWorld" {
		t.Errorf("after delete = %q", text)
	}
}

func TestInsertImage_Errors(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"text": "abc"})

	r := callTool(t, srv, "insert_image", map[string]any{
		"note_id": 1, "fragment_num": 0, "char_offset": 1, "image_name": "missing.png",
	})
	if !r.IsError {
		t.Error("expected error for missing image")
	}
	r = callTool(t, srv, "insert_image", map[string]any{"note_id": 1, "image_name": "x.png"})
	if !r.IsError {
		t.Error("expected error for missing arguments")
	}
}

func TestUploadImage_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	png := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	cases := map[string]map[string]any{
		"wrong magic":   {"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text")), "filename": "a.png"},
		"bad mime":      {"url": "data:text/plain;base64,aGk=", "filename": "a.png"},
		"not base64":    {"url": "data:image/png,raw", "filename": "a.png"},
		"bad scheme":    {"url": "ftp://example.com/a.png"},
		"loopback host": {"url": "http://127.0.0.1/a.png"},
		"extension":     {"url": png, "filename": "a.txt"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if r := callTool(t, srv, "upload_image", args); !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestUploadImage_Duplicate(t *testing.T) {
	srv, _ := testServer(t)
	args := map[string]any{
		"url":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
		"filename": "dup.png",
	}
	if r := callTool(t, srv, "upload_image", args); r.IsError {
		t.Fatalf("first upload: %s", resultText(r))
	}
	r := callTool(t, srv, "upload_image", args)
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("second upload = %q", resultText(r))
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"text": "buy oat milk"})
	callTool(t, srv, "create_note", map[string]any{"text": "call mum"})

	r := callTool(t, srv, "search_notes", map[string]any{"query": "oat"})
	if r.IsError {
		t.Fatalf("search: %s", resultText(r))
	}
	if text := resultText(r); !strings.Contains(text, `"note_id": 1`) || strings.Contains(text, `"note_id": 2`) {
		t.Errorf("results = %s", text)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"cat.png":           "cat.png",
		"../../etc/cat.png": "cat.png",
		"my cat!.png":       "my_cat_.png",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNoteFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != noteFormatURI || !strings.Contains(tc.Text, "insert_image") {
		t.Errorf("resource = %+v", contents)
	}
}
