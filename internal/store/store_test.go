package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/document"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "rplanner-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleNote() document.Note {
	return document.Note{
		Date: "Sat, 17 Oct 2026 10:00:00 +0000",
		Content: []document.Fragment{
			document.Text("before"),
			document.Image("cat.png"),
			document.Text("after"),
		},
	}
}

func countRows(t *testing.T, db *DB, table string, id document.NoteID) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM `+table+` WHERE note_id = ?`, id).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "note_text_elements", "note_image_elements"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestCreateAndGetNote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.CreateNote(ctx, sampleNote())
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	got, err := db.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	want := sampleNote()
	if got.Date != want.Date {
		t.Errorf("date = %q, want %q", got.Date, want.Date)
	}
	if len(got.Content) != 3 {
		t.Fatalf("content len = %d, want 3", len(got.Content))
	}
	for i := range want.Content {
		if got.Content[i] != want.Content[i] {
			t.Errorf("content[%d] = %v, want %v", i, got.Content[i], want.Content[i])
		}
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetNote(context.Background(), 42)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListNotes_OrderedByID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, _ := db.CreateNote(ctx, document.New("d1"))
	second, _ := db.CreateNote(ctx, sampleNote())

	entries, err := db.ListNotes(ctx)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].ID != first || entries[1].ID != second {
		t.Errorf("ids = %d,%d, want %d,%d", entries[0].ID, entries[1].ID, first, second)
	}
	if entries[0].Note.Content[0] != document.Text(document.DefaultText) {
		t.Errorf("first note content = %v", entries[0].Note.Content)
	}
}

func TestReplaceNote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.CreateNote(ctx, sampleNote())
	replacement := document.Note{Date: "later", Content: []document.Fragment{document.Text("only")}}
	if err := db.ReplaceNote(ctx, id, replacement); err != nil {
		t.Fatalf("ReplaceNote: %v", err)
	}
	got, _ := db.GetNote(ctx, id)
	if got.Date != "later" || len(got.Content) != 1 || got.Content[0] != document.Text("only") {
		t.Errorf("got %+v", got)
	}
	if n := countRows(t, db, "note_image_elements", id); n != 0 {
		t.Errorf("stale image rows = %d", n)
	}
}

func TestReplaceNote_NotFound(t *testing.T) {
	db := testDB(t)
	err := db.ReplaceNote(context.Background(), 7, document.New("d"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := countRows(t, db, "note_text_elements", 7); n != 0 {
		t.Errorf("orphan text rows = %d", n)
	}
}

func TestDeleteNote_RemovesAllRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.CreateNote(ctx, sampleNote())
	if err := db.DeleteNote(ctx, id); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if n := countRows(t, db, "note_text_elements", id); n != 0 {
		t.Errorf("text rows = %d", n)
	}
	if n := countRows(t, db, "note_image_elements", id); n != 0 {
		t.Errorf("image rows = %d", n)
	}
	if _, err := db.GetNote(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetNote after delete: %v", err)
	}
	if err := db.DeleteNote(ctx, id); err != nil {
		t.Errorf("second DeleteNote: %v", err)
	}
}

func TestDeletedIDsAreNotReused(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.CreateNote(ctx, document.New("d"))
	_ = db.DeleteNote(ctx, id)
	next, err := db.CreateNote(ctx, document.New("d"))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if next <= id {
		t.Errorf("new id %d reuses or precedes deleted id %d", next, id)
	}
}

func TestUpdate_AppliesEdit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.CreateNote(ctx, document.Note{Date: "d", Content: []document.Fragment{document.Text("HelloWorld")}})
	err := db.Update(ctx, id, func(n document.Note) (document.Note, error) {
		return document.InsertImage(n, 0, 5, "x.png")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := db.GetNote(ctx, id)
	want := []document.Fragment{document.Text("Hello"), document.Image("x.png"), document.Text("World")}
	if len(got.Content) != len(want) {
		t.Fatalf("content = %v, want %v", got.Content, want)
	}
	for i := range want {
		if got.Content[i] != want[i] {
			t.Errorf("content[%d] = %v, want %v", i, got.Content[i], want[i])
		}
	}
}

func TestUpdate_FailedEditLeavesNoteUntouched(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.CreateNote(ctx, sampleNote())
	err := db.Update(ctx, id, func(n document.Note) (document.Note, error) {
		return document.DeleteFragment(n, 10)
	})
	if !errors.Is(err, apperr.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	got, _ := db.GetNote(ctx, id)
	if len(got.Content) != 3 {
		t.Errorf("content len = %d, want 3", len(got.Content))
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := testDB(t)
	called := false
	err := db.Update(context.Background(), 99, func(n document.Note) (document.Note, error) {
		called = true
		return n, nil
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if called {
		t.Error("edit should not run for a missing note")
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.CreateNote(ctx, document.Note{Date: "d", Content: []document.Fragment{
		document.Text("buy milk"),
		document.Image("milk.png"),
		document.Text("call grandma"),
	}})
	results, err := db.Search(ctx, "grandma", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].NoteID != id || results[0].FragmentNum != 2 {
		t.Errorf("result = %+v", results[0])
	}

	_ = db.DeleteNote(ctx, id)
	results, _ = db.Search(ctx, "grandma", 10)
	if len(results) != 0 {
		t.Errorf("results after delete = %d, want 0", len(results))
	}
}

func TestSearch_QueryIsLiteral(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	sale, _ := db.CreateNote(ctx, document.Note{Date: "d", Content: []document.Fragment{document.Text("50% off a_c units")}})
	_, _ = db.CreateNote(ctx, document.Note{Date: "d", Content: []document.Fragment{document.Text("500 abc units")}})

	for _, q := range []string{"50%", "a_c"} {
		results, err := db.Search(ctx, q, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(results) != 1 || results[0].NoteID != sale {
			t.Errorf("Search(%q) = %+v, want only note %d", q, results, sale)
		}
	}

	if _, err := db.Search(ctx, `units "`, 10); err != nil {
		t.Errorf("stray quote: %v", err)
	}
}
