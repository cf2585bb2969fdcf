package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "order_milestones_order_id_milestone_key", TableName: "order_milestones", Message: "duplicate key value"}
	err := fmt.Errorf("submit: %w", Wrap(CodeConflict, pgErr, "milestone already exists"))

	d := Dump(err)
	if d.Code != CodeConflict || d.Retryable {
		t.Fatalf("unexpected code/retryable %s/%v", d.Code, d.Retryable)
	}
	if d.PGCode != "23505" || d.PGTable != "order_milestones" {
		t.Fatalf("missing pg diagnostics: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected three links in chain, got %v", d.Chain)
	}

	fields := d.Fields()
	if fields["pg_constraint"] != "order_milestones_order_id_milestone_key" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

func TestDumpExtractsPqDiagnostics(t *testing.T) {
	d := Dump(&pq.Error{Code: "23514", Constraint: "order_escrows_balance_check", Table: "order_escrows"})
	if d.PGCode != "23514" || d.PGConstraint != "order_escrows_balance_check" {
		t.Fatalf("missing pq diagnostics: %+v", d)
	}
	if d.Code != CodeInternal {
		t.Fatalf("untyped errors dump as internal, got %s", d.Code)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
	_ = stdErrors.New
}
