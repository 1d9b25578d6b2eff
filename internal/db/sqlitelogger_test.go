package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) recordsFor(t *testing.T, msg string) []map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.attrs {
		if m["msg"].String() == msg {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = nil
}

func openLogged(t *testing.T) (*sql.DB, *captureHandler) {
	t.Helper()
	handler := &captureHandler{}
	db := sql.OpenDB(NewLoggingConnector(":memory:", slog.New(handler)))
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, handler
}

func TestLoggingConnector_ExecAndQueryLogged(t *testing.T) {
	db, handler := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected at least one sql log record for Exec")
	}
	got := recs[len(recs)-1]
	if got["op"].String() != "exec" {
		t.Errorf("op: got %q, want exec", got["op"].String())
	}
	if got["sql"].String() != `CREATE TABLE t (id INTEGER PRIMARY KEY)` {
		t.Errorf("sql: got %q", got["sql"].String())
	}
	if _, ok := got["elapsed"]; !ok {
		t.Error("expected elapsed attribute")
	}

	handler.reset()
	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	recs = handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log record for QueryRow")
	}
	if got := recs[len(recs)-1]; got["op"].String() != "query" || got["sql"].String() != `SELECT 1` {
		t.Errorf("query record = %v", got)
	}
}

func TestLoggingConnector_ArgsLogged(t *testing.T) {
	db, handler := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, name TEXT, note TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	handler.reset()

	if _, err := db.Exec(`INSERT INTO t (id, name, note) VALUES (?, ?, ?)`, 1, "kitchen", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log for Exec with args")
	}
	args, ok := recs[len(recs)-1]["args"].Any().([]string)
	if !ok {
		t.Fatalf("args attribute = %v", recs[len(recs)-1]["args"])
	}
	want := []string{"1", "kitchen", "NULL"}
	if len(args) != len(want) {
		t.Fatalf("args = %q, want %q", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestLoggingConnector_ErrorLogged(t *testing.T) {
	db, handler := openLogged(t)

	if _, err := db.Exec(`INSERT INTO missing VALUES (1)`); err == nil {
		t.Fatal("insert into missing table succeeded")
	}

	for _, rec := range handler.attrs {
		if _, ok := rec["error"]; ok {
			return
		}
	}
	t.Error("no log record carried the statement error")
}

func TestLoggingConnector_MultiStatementExec(t *testing.T) {
	db, _ := openLogged(t)

	if _, err := db.Exec(`
		CREATE TABLE a (id INTEGER);
		CREATE TABLE b (id INTEGER);
		INSERT INTO b (id) VALUES (7);
	`); err != nil {
		t.Fatalf("exec script: %v", err)
	}

	var id int
	if err := db.QueryRow(`SELECT id FROM b`).Scan(&id); err != nil {
		t.Fatalf("select from second table: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}

func TestLoggingConnector_PreparedStatement(t *testing.T) {
	db, handler := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	stmt, err := db.Prepare(`INSERT INTO t (id) VALUES (?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer func() { _ = stmt.Close() }()

	handler.reset()
	for i := 0; i < 3; i++ {
		if _, err := stmt.Exec(i); err != nil {
			t.Fatalf("exec %d: %v", i, err)
		}
	}
	if got := len(handler.recordsFor(t, "sql")); got != 3 {
		t.Errorf("got %d sql records for 3 prepared execs, want 3", got)
	}
}

func TestLoggingDriver_OpenRefused(t *testing.T) {
	conn := NewLoggingConnector(":memory:", nil)
	if _, err := conn.Driver().Open(":memory:"); err == nil {
		t.Error("Driver().Open() error = nil")
	}
}
