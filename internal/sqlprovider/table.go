package sqlprovider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tableTracer = otel.Tracer("github.com/entitykit/session/internal/sqlprovider")

// sqlTable implements provider.CRUDTable over a single SQL table via
// reflection, so one generic implementation serves every entity type
// registered with a Provider — the session package never sees SQL.
type sqlTable struct {
	db        *sql.DB
	tableName string
	typ       reflect.Type
	cols      []column
	pkIdx     int
}

func newSQLTable(db *sql.DB, tableName string, sample any) (*sqlTable, error) {
	typ := reflect.TypeOf(sample)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	cols, err := reflectColumns(typ)
	if err != nil {
		return nil, err
	}
	pkIdx, err := primaryKeyIndex(cols)
	if err != nil {
		return nil, fmt.Errorf("sqlprovider: table %s: %w", tableName, err)
	}
	return &sqlTable{db: db, tableName: tableName, typ: typ, cols: cols, pkIdx: pkIdx}, nil
}

func (t *sqlTable) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return tableTracer.Start(ctx, "sqlprovider."+op, trace.WithAttributes(
		attribute.String("db.table", t.tableName),
	))
}

func (t *sqlTable) Insert(ctx context.Context, instance any) error {
	ctx, span := t.span(ctx, "Insert")
	defer span.End()

	names := columnNames(t.cols)
	placeholders := make([]string, len(t.cols))
	values := make([]any, len(t.cols))
	for i, c := range t.cols {
		placeholders[i] = "?"
		values[i] = fieldValue(instance, c)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.tableName, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	_, err := connFromContext(ctx, t.db).ExecContext(ctx, q, values...)
	if err != nil {
		span.RecordError(err)
	}
	return wrapSQLError("insert "+t.tableName, err)
}

func (t *sqlTable) Update(ctx context.Context, instance any) error {
	ctx, span := t.span(ctx, "Update")
	defer span.End()

	var sets []string
	var values []any
	for i, c := range t.cols {
		if i == t.pkIdx {
			continue
		}
		sets = append(sets, c.name+" = ?")
		values = append(values, fieldValue(instance, c))
	}
	values = append(values, fieldValue(instance, t.cols[t.pkIdx]))
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.tableName, strings.Join(sets, ", "), t.cols[t.pkIdx].name)
	_, err := connFromContext(ctx, t.db).ExecContext(ctx, q, values...)
	if err != nil {
		span.RecordError(err)
	}
	return wrapSQLError("update "+t.tableName, err)
}

// InsertOrUpdate tries Update first and falls back to Insert when no row
// matched — portable across sqlite and mysql without relying on either
// dialect's non-standard upsert syntax.
func (t *sqlTable) InsertOrUpdate(ctx context.Context, instance any) error {
	ctx, span := t.span(ctx, "InsertOrUpdate")
	defer span.End()

	var sets []string
	var values []any
	for i, c := range t.cols {
		if i == t.pkIdx {
			continue
		}
		sets = append(sets, c.name+" = ?")
		values = append(values, fieldValue(instance, c))
	}
	values = append(values, fieldValue(instance, t.cols[t.pkIdx]))
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.tableName, strings.Join(sets, ", "), t.cols[t.pkIdx].name)
	res, err := connFromContext(ctx, t.db).ExecContext(ctx, q, values...)
	if err != nil {
		span.RecordError(err)
		return wrapSQLError("upsert "+t.tableName, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	return t.Insert(ctx, instance)
}

func (t *sqlTable) Delete(ctx context.Context, instance any) error {
	ctx, span := t.span(ctx, "Delete")
	defer span.End()

	key := fieldValue(instance, t.cols[t.pkIdx])
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.tableName, t.cols[t.pkIdx].name)
	_, err := connFromContext(ctx, t.db).ExecContext(ctx, q, key)
	if err != nil {
		span.RecordError(err)
	}
	return wrapSQLError("delete "+t.tableName, err)
}

func (t *sqlTable) GetByID(ctx context.Context, key any) (any, error) {
	ctx, span := t.span(ctx, "GetByID")
	defer span.End()

	names := columnNames(t.cols)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(names, ", "), t.tableName, t.cols[t.pkIdx].name)
	row := connFromContext(ctx, t.db).QueryRowContext(ctx, q, key)
	instance := reflect.New(t.typ).Interface()
	dests := make([]any, len(t.cols))
	for i, c := range t.cols {
		dests[i] = scanDest(instance, c)
	}
	if err := row.Scan(dests...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, wrapSQLError("get "+t.tableName, err)
	}
	return instance, nil
}
