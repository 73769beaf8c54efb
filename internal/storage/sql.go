package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/resolvent-dev/resolvent/internal/descriptor"
	"github.com/resolvent-dev/resolvent/internal/filter"
)

// SQLStore is a database/sql DataSource. Tables and columns derive
// from descriptor names (resource "Offer" -> table "offers", field
// "releaseDate" -> column "release_date"); nested filter paths become
// LEFT JOINs through relation foreign keys. All values are
// parameterized; identifiers only ever come from descriptors, never
// from caller input.
type SQLStore struct {
	db       *sql.DB
	registry *descriptor.Registry
}

// NewSQLStore creates a SQL-backed store over the registry.
func NewSQLStore(db *sql.DB, registry *descriptor.Registry) *SQLStore {
	return &SQLStore{db: db, registry: registry}
}

// selectQuery accumulates a parameterized SELECT with relation joins.
type selectQuery struct {
	root    *descriptor.Resource
	joins   []string
	joined  map[string]string // relation field name -> table alias
	where   []string
	args    []interface{}
	orderBy []string
}

// Count implements DataSource.
func (s *SQLStore) Count(ctx context.Context, resource string, spec filter.Spec) (int, error) {
	res := s.registry.Resource(resource)
	if res == nil {
		return 0, fmt.Errorf("unknown resource %q", resource)
	}

	q := newSelectQuery(res)
	if err := s.applySpec(q, spec); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s%s",
		toTableName(res.Name), q.joinClause(), q.whereClause())

	var n int
	if err := s.db.QueryRowContext(ctx, query, q.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// FetchWindow implements DataSource.
func (s *SQLStore) FetchWindow(ctx context.Context, resource string, spec filter.Spec, ordering filter.Ordering, offset, limit int) ([]Record, error) {
	res := s.registry.Resource(resource)
	if res == nil {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}

	q := newSelectQuery(res)
	if err := s.applySpec(q, spec); err != nil {
		return nil, err
	}
	if err := s.applyOrdering(q, ordering); err != nil {
		return nil, err
	}

	table := toTableName(res.Name)
	query := fmt.Sprintf("SELECT %s FROM %s%s%s%s LIMIT $%d OFFSET $%d",
		columnList(res, table), table, q.joinClause(), q.whereClause(), q.orderClause(),
		len(q.args)+1, len(q.args)+2)
	q.args = append(q.args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows, res)
}

// FetchOne implements DataSource.
func (s *SQLStore) FetchOne(ctx context.Context, resource string, id string) (Record, error) {
	res := s.registry.Resource(resource)
	if res == nil {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}

	table := toTableName(res.Name)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s.id = $1 LIMIT 1",
		columnList(res, table), table, table)

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanRows(rows, res)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Mutate implements DataSource.
func (s *SQLStore) Mutate(ctx context.Context, resource string, op descriptor.Operation, input Record) (Record, error) {
	res := s.registry.Resource(resource)
	if res == nil {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}
	table := toTableName(res.Name)

	switch op {
	case descriptor.OperationCreate:
		id, ok := input["id"]
		if !ok || id == nil || id == "" {
			id = uuid.NewString()
		}

		cols := []string{"id"}
		placeholders := []string{"$1"}
		args := []interface{}{id}
		for i := range res.Fields {
			field := &res.Fields[i]
			if field.Name == "id" {
				continue
			}
			v, ok := input[field.Name]
			if !ok {
				continue
			}
			cols = append(cols, fieldColumn(field))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
			args = append(args, v)
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
		return s.FetchOne(ctx, resource, fmt.Sprint(id))

	case descriptor.OperationUpdate:
		id := fmt.Sprint(input["id"])

		var sets []string
		var args []interface{}
		for i := range res.Fields {
			field := &res.Fields[i]
			if field.Name == "id" {
				continue
			}
			v, ok := input[field.Name]
			if !ok {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = $%d", fieldColumn(field), len(args)+1))
			args = append(args, v)
		}
		if len(sets) == 0 {
			return s.FetchOne(ctx, resource, id)
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
			table, strings.Join(sets, ", "), len(args)+1)
		args = append(args, id)

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return nil, ErrNotFound
		}
		return s.FetchOne(ctx, resource, id)

	case descriptor.OperationDelete:
		id := fmt.Sprint(input["id"])
		record, err := s.FetchOne(ctx, resource, id)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", table)
		if _, err := s.db.ExecContext(ctx, query, id); err != nil {
			return nil, err
		}
		return record, nil

	default:
		return nil, fmt.Errorf("unsupported mutation %q", op)
	}
}

func newSelectQuery(res *descriptor.Resource) *selectQuery {
	return &selectQuery{root: res, joined: make(map[string]string)}
}

func (s *SQLStore) applySpec(q *selectQuery, spec filter.Spec) error {
	for _, pred := range spec.Predicates {
		col, err := s.pathColumn(q, pred.Path)
		if err != nil {
			return err
		}
		switch pred.Op {
		case filter.OpEq:
			q.where = append(q.where, fmt.Sprintf("%s = $%d", col, len(q.args)+1))
			q.args = append(q.args, pred.Values[0])
		case filter.OpIn:
			placeholders := make([]string, len(pred.Values))
			for i, v := range pred.Values {
				placeholders[i] = fmt.Sprintf("$%d", len(q.args)+1)
				q.args = append(q.args, v)
			}
			q.where = append(q.where, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		case filter.OpContains:
			q.where = append(q.where, fmt.Sprintf("LOWER(%s) LIKE $%d", col, len(q.args)+1))
			q.args = append(q.args, "%"+strings.ToLower(fmt.Sprint(pred.Values[0]))+"%")
		}
	}
	return nil
}

func (s *SQLStore) applyOrdering(q *selectQuery, ordering filter.Ordering) error {
	for _, term := range ordering {
		col, err := s.pathColumn(q, term.Path)
		if err != nil {
			return err
		}
		dir := "ASC"
		if term.Descending {
			dir = "DESC"
		}
		q.orderBy = append(q.orderBy, col+" "+dir)
	}
	// Deterministic tiebreak keeps cursor positions stable.
	q.orderBy = append(q.orderBy, toTableName(q.root.Name)+".id ASC")
	return nil
}

// pathColumn resolves a property path into a qualified column,
// registering LEFT JOINs for relation segments.
func (s *SQLStore) pathColumn(q *selectQuery, path string) (string, error) {
	segments := strings.Split(path, ".")
	currentRes := q.root
	currentTable := toTableName(q.root.Name)

	for i, seg := range segments {
		field := currentRes.Field(seg)
		if field == nil {
			return "", fmt.Errorf("path %q: no field %q on resource %q", path, seg, currentRes.Name)
		}
		if i == len(segments)-1 {
			return currentTable + "." + fieldColumn(field), nil
		}
		if field.Type != descriptor.TypeRelation {
			return "", fmt.Errorf("path %q: field %q is not a relation", path, seg)
		}

		target := s.registry.Resource(field.Relation)
		alias, ok := q.joined[currentTable+"."+seg]
		if !ok {
			alias = fmt.Sprintf("j%d", len(q.joined)+1)
			q.joined[currentTable+"."+seg] = alias
			q.joins = append(q.joins, fmt.Sprintf(" LEFT JOIN %s AS %s ON %s.%s = %s.id",
				toTableName(target.Name), alias, currentTable, fieldColumn(field), alias))
		}
		currentRes = target
		currentTable = alias
	}
	return "", fmt.Errorf("path %q did not resolve", path)
}

func (q *selectQuery) joinClause() string {
	return strings.Join(q.joins, "")
}

func (q *selectQuery) whereClause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *selectQuery) orderClause() string {
	if len(q.orderBy) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(q.orderBy, ", ")
}

// columnList selects every declared field, aliased back to the field
// name so scanned records use descriptor names, not column names.
func columnList(res *descriptor.Resource, table string) string {
	cols := make([]string, len(res.Fields))
	for i := range res.Fields {
		field := &res.Fields[i]
		col := table + "." + fieldColumn(field)
		if fieldColumn(field) != field.Name {
			col += " AS " + quoteIdent(field.Name)
		}
		cols[i] = col
	}
	return strings.Join(cols, ", ")
}

// scanRows scans result rows into records keyed by column name.
func scanRows(rows *sql.Rows, res *descriptor.Resource) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[col] = v
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// fieldColumn maps a field to its column: snake_case, with relation
// fields carrying the _id foreign-key suffix.
func fieldColumn(field *descriptor.Field) string {
	if field.Type == descriptor.TypeRelation {
		return toSnakeCase(field.Name) + "_id"
	}
	return toSnakeCase(field.Name)
}

// toTableName converts a resource name to its table name.
func toTableName(resourceName string) string {
	return toSnakeCase(resourceName) + "s"
}

// toSnakeCase converts camelCase or PascalCase to snake_case.
func toSnakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result = append(result, '_')
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+32)
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
