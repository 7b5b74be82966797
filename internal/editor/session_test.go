package editor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/rplanner/internal/api"
	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/caret"
	"github.com/starford/rplanner/internal/client"
	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/noteservice"
	"github.com/starford/rplanner/internal/surface"
	"github.com/starford/rplanner/internal/testutil"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	svc     *noteservice.Service
	client  *client.Client
	session *Session
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	_, images := testutil.TestImages(t)
	svc := noteservice.NewService(testutil.TestDB(t), images)
	srv := httptest.NewServer(api.NewServer(svc, api.NewRouter(svc, false, "", nil, 1024)))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s := New(c, opts...)
	t.Cleanup(s.Close)
	return &env{svc: svc, client: c, session: s}
}

func (e *env) seed(t *testing.T, fragments ...document.Fragment) document.NoteID {
	t.Helper()
	id, err := e.svc.CreateNote(context.Background(), document.Note{Date: "d", Content: fragments})
	require.NoError(t, err)
	return id
}

func (e *env) stored(t *testing.T, id document.NoteID) document.Note {
	t.Helper()
	n, err := e.svc.GetNote(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (e *env) place(t *testing.T, pos caret.Position) {
	t.Helper()
	require.NoError(t, caret.Move(e.session.Surface(), pos))
	e.session.Surface().Dispatch()
}

func (e *env) caret(t *testing.T) caret.Position {
	t.Helper()
	pos, err := caret.Current(e.session.Surface())
	require.NoError(t, err)
	return pos
}

func TestRefresh_RendersNotes(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("a"), document.Image("x.png"))
	ctx := context.Background()

	require.NoError(t, e.session.Refresh(ctx))

	children, ok := e.session.Surface().Children(id)
	require.True(t, ok)
	assert.Equal(t, []document.SurfaceChild{
		{Kind: document.ChildText, Value: "a"},
		{Kind: document.ChildImage, Value: "x.png"},
	}, children)

	n, ok := e.session.Note(id)
	require.True(t, ok)
	assert.Equal(t, document.Image("x.png"), n.Content[1])
}

func TestInput_FlushesAfterThreshold(t *testing.T) {
	e := newEnv(t, WithThreshold(3))
	id := e.seed(t, document.Text("old"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))

	require.NoError(t, e.session.Input(id, 0, "new text"))
	e.session.Tick(ctx)
	e.session.Tick(ctx)
	assert.Equal(t, document.Text("old"), e.stored(t, id).Content[0])

	e.session.Tick(ctx)
	n := e.stored(t, id)
	assert.Equal(t, []document.Fragment{document.Text("new text")}, n.Content)
	assert.Equal(t, document.Date(fixedNow), n.Date)
	assert.False(t, e.session.Scheduler().Pending(id))
}

func TestInput_EditResetsCountdown(t *testing.T) {
	e := newEnv(t, WithThreshold(2))
	id := e.seed(t, document.Text("old"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))

	require.NoError(t, e.session.Input(id, 0, "a"))
	e.session.Tick(ctx)
	require.NoError(t, e.session.Input(id, 0, "ab"))
	e.session.Tick(ctx)
	assert.Equal(t, document.Text("old"), e.stored(t, id).Content[0])

	e.session.Tick(ctx)
	assert.Equal(t, document.Text("ab"), e.stored(t, id).Content[0])
}

func TestInput_KeepsCaret(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("hello"))
	require.NoError(t, e.session.Refresh(context.Background()))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 4})

	require.NoError(t, e.session.Input(id, 0, "hello!"))
	assert.Equal(t, 4, e.caret(t).Offset)

	require.NoError(t, e.session.Input(id, 0, "he"))
	assert.Equal(t, 2, e.caret(t).Offset)
}

func TestInput_Errors(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("a"), document.Image("x.png"))
	require.NoError(t, e.session.Refresh(context.Background()))

	assert.ErrorIs(t, e.session.Input(id, 1, "x"), apperr.ErrInvalidOperation)
	assert.ErrorIs(t, e.session.Input(id, 9, "x"), apperr.ErrNotFound)
	assert.ErrorIs(t, e.session.Input(id+1, 0, "x"), apperr.ErrNotFound)
}

func TestFlush_SerializesSurface(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("a"), document.Image("x.png"), document.Text("b"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))
	require.NoError(t, e.session.Input(id, 2, "b2"))

	require.NoError(t, e.session.Flush(ctx, id))
	assert.Equal(t, []document.Fragment{
		document.Text("a"), document.Image("x.png"), document.Text("b2"),
	}, e.stored(t, id).Content)
	assert.False(t, e.session.Scheduler().Pending(id))
}

func TestTick_FailedFlushIsLoggedAndAbandoned(t *testing.T) {
	var logs bytes.Buffer
	e := newEnv(t, WithThreshold(1), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	id := e.seed(t, document.Text("a"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))
	require.NoError(t, e.session.Input(id, 0, "b"))

	require.NoError(t, e.svc.DeleteNote(ctx, id))
	e.session.Tick(ctx)

	assert.Contains(t, logs.String(), "flush abandoned")
	assert.Equal(t, 1, e.session.Scheduler().Len())
	assert.Empty(t, e.session.Scheduler().Tick(), "a due note is flushed once")
}

func TestInsertNewline_CaretAfterBreak(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("abcd"))
	require.NoError(t, e.session.Refresh(context.Background()))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 2})

	require.NoError(t, e.session.InsertNewline())

	children, _ := e.session.Surface().Children(id)
	assert.Equal(t, "ab\ncd", children[0].Value)
	assert.Equal(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 3}, e.caret(t))
	assert.Zero(t, e.session.Surface().Listeners(), "one-shot listener must deregister")
	assert.True(t, e.session.Scheduler().Pending(id))
}

func TestInsertNewline_NoSelection(t *testing.T) {
	e := newEnv(t)
	e.seed(t, document.Text("abcd"))
	require.NoError(t, e.session.Refresh(context.Background()))

	assert.ErrorIs(t, e.session.InsertNewline(), apperr.ErrSelectionUnavailable)
}

func TestInsertImageAtCaret(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.client.UploadImage(ctx, "cat.png", []byte("png"))
	require.NoError(t, err)
	id := e.seed(t, document.Text("HelloWorld"))
	require.NoError(t, e.session.Refresh(ctx))

	require.NoError(t, e.session.Input(id, 0, "Hello World"))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 5})
	require.NoError(t, e.session.InsertImageAtCaret(ctx, "cat.png"))

	assert.Equal(t, []document.Fragment{
		document.Text("Hello"), document.Image("cat.png"), document.Text(" World"),
	}, e.stored(t, id).Content, "pending edits are flushed before the split")
	assert.Equal(t, caret.Position{NoteID: id, FragmentNum: 2, Offset: 0}, e.caret(t))

	children, _ := e.session.Surface().Children(id)
	assert.Len(t, children, 3)
}

func TestInsertImageAtCaret_OnImage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.client.UploadImage(ctx, "cat.png", []byte("png"))
	require.NoError(t, err)
	id := e.seed(t, document.Text("a"), document.Image("cat.png"))
	require.NoError(t, e.session.Refresh(ctx))
	img, _ := e.session.Surface().FragmentElement(id, 1)
	e.session.Surface().SetSelection(surface.Selection{Anchor: img})

	err = e.session.InsertImageAtCaret(ctx, "cat.png")
	assert.ErrorIs(t, err, apperr.ErrInvalidOperation)
}

func TestBackspace_DeletesImageAndMerges(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("Hello"), document.Image("cat.png"), document.Text("World"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 2, Offset: 0})

	handled, err := e.session.Backspace(ctx)
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Equal(t, []document.Fragment{document.Text("HelloWorld")}, e.stored(t, id).Content)
	assert.Equal(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 5}, e.caret(t))
}

func TestBackspace_LeadingImage(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Image("cat.png"), document.Text("World"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 1, Offset: 0})

	handled, err := e.session.Backspace(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []document.Fragment{document.Text("World")}, e.stored(t, id).Content)
	assert.Equal(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 0}, e.caret(t))
}

func TestBackspace_NotHandled(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("Hello"), document.Text("World"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))

	for _, pos := range []caret.Position{
		{NoteID: id, FragmentNum: 1, Offset: 2},
		{NoteID: id, FragmentNum: 1, Offset: 0},
		{NoteID: id, FragmentNum: 0, Offset: 0},
	} {
		e.place(t, pos)
		handled, err := e.session.Backspace(ctx)
		require.NoError(t, err)
		assert.False(t, handled, "position %+v", pos)
	}
	assert.Len(t, e.stored(t, id).Content, 2)
}

func TestMoveVertical_WithinFragment(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("abcdef\nxy\nlonger line"))
	require.NoError(t, e.session.Refresh(context.Background()))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 4})

	moved, err := e.session.MoveVertical(Down)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 9, e.caret(t).Offset, "column clamps to the short line")

	moved, err = e.session.MoveVertical(Down)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 12, e.caret(t).Offset)

	moved, err = e.session.MoveVertical(Up)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 9, e.caret(t).Offset)
}

func TestMoveVertical_AcrossImages(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("top\nlast"), document.Image("x.png"), document.Text("first\nbottom"))
	require.NoError(t, e.session.Refresh(context.Background()))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 6})

	moved, err := e.session.MoveVertical(Down)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, caret.Position{NoteID: id, FragmentNum: 2, Offset: 2}, e.caret(t))

	moved, err = e.session.MoveVertical(Up)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 6}, e.caret(t))
}

func TestMoveVertical_AtEdges(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("only"))
	require.NoError(t, e.session.Refresh(context.Background()))
	e.place(t, caret.Position{NoteID: id, FragmentNum: 0, Offset: 2})

	for _, dir := range []Direction{Up, Down} {
		moved, err := e.session.MoveVertical(dir)
		require.NoError(t, err)
		assert.False(t, moved)
	}
	assert.Equal(t, 2, e.caret(t).Offset)
}

func TestAddAndDeleteNote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.session.AddNote(ctx)
	require.NoError(t, err)
	n := e.stored(t, id)
	assert.Equal(t, []document.Fragment{document.Text(document.DefaultText)}, n.Content)
	assert.Equal(t, document.Date(fixedNow), n.Date)
	_, ok := e.session.Surface().NoteElement(id)
	assert.True(t, ok)

	require.NoError(t, e.session.Input(id, 0, "draft"))
	require.NoError(t, e.session.DeleteNote(ctx, id))
	assert.Zero(t, e.session.Scheduler().Len())
	_, ok = e.session.Surface().NoteElement(id)
	assert.False(t, ok)

	_, err = e.svc.GetNote(ctx, id)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRun_FlushesInBackground(t *testing.T) {
	e := newEnv(t, WithThreshold(1))
	id := e.seed(t, document.Text("a"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.session.Refresh(ctx))

	done := make(chan struct{})
	go func() {
		e.session.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.NoError(t, e.session.Input(id, 0, "typed"))
	require.Eventually(t, func() bool {
		return e.stored(t, id).Content[0] == document.Text("typed")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestClose_DropsTimers(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("a"))
	require.NoError(t, e.session.Refresh(context.Background()))
	require.NoError(t, e.session.Input(id, 0, "b"))

	e.session.Close()
	assert.Zero(t, e.session.Scheduler().Len())
}

func TestAppendLine(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text(""), document.Image("x.png"))
	require.NoError(t, e.session.Refresh(context.Background()))

	require.NoError(t, e.session.AppendLine(id, 0, "one"))
	require.NoError(t, e.session.AppendLine(id, 0, "two"))
	require.NoError(t, e.session.Flush(context.Background(), id))
	assert.Equal(t, document.Text("one\ntwo"), e.stored(t, id).Content[0])

	assert.ErrorIs(t, e.session.AppendLine(id, 1, "x"), apperr.ErrInvalidOperation)
}

func TestEditLines_FlushesOnPauseAndAtEnd(t *testing.T) {
	e := newEnv(t, WithThreshold(1))
	id := e.seed(t, document.Text("start"))
	ctx := context.Background()
	require.NoError(t, e.session.Refresh(ctx))

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- e.session.EditLines(ctx, pr, id, 0, 10*time.Millisecond)
	}()

	_, err := io.WriteString(pw, "first\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return e.stored(t, id).Content[0] == document.Text("start\nfirst")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(pw, "last\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	assert.Equal(t, document.Text("start\nfirst\nlast"), e.stored(t, id).Content[0])
	assert.False(t, e.session.Scheduler().Pending(id))
}

func TestEditLines_UnknownFragment(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, document.Text("a"))
	require.NoError(t, e.session.Refresh(context.Background()))

	err := e.session.EditLines(context.Background(), strings.NewReader("x\n"), id, 4, time.Second)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
