package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/supa-community/supa.go/pkg/transport"
)

// QueryBuilder accumulates one request against a table. Builders are cheap;
// create a fresh one per query via Client.From.
type QueryBuilder struct {
	client  *Client
	table   string
	method  string
	body    any
	params  url.Values
	prefer  []string
	single  bool
	count   bool
	hasFrom bool
	from    int
	to      int
}

func newQueryBuilder(c *Client, table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
		method: http.MethodGet,
		params: url.Values{},
	}
}

// Select sets the columns to return. With no arguments all columns are
// returned. Select after Insert/Upsert/Update asks the database to return the
// affected rows.
func (q *QueryBuilder) Select(columns ...string) *QueryBuilder {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ",")
	}
	q.params.Set("select", cols)
	if q.method != http.MethodGet {
		q.prefer = append(q.prefer, "return=representation")
	}
	return q
}

// Insert sets the builder to insert value, which may be a single row or a
// slice of rows.
func (q *QueryBuilder) Insert(value any) *QueryBuilder {
	q.method = http.MethodPost
	q.body = value
	return q
}

// Upsert inserts value, updating rows that conflict on the primary key.
func (q *QueryBuilder) Upsert(value any) *QueryBuilder {
	q.method = http.MethodPost
	q.body = value
	q.prefer = append(q.prefer, "resolution=merge-duplicates")
	return q
}

// Update patches the rows matched by the filters with value.
func (q *QueryBuilder) Update(value any) *QueryBuilder {
	q.method = http.MethodPatch
	q.body = value
	return q
}

// Delete removes the rows matched by the filters.
func (q *QueryBuilder) Delete() *QueryBuilder {
	q.method = http.MethodDelete
	return q
}

func (q *QueryBuilder) filter(column, op string, value any) *QueryBuilder {
	q.params.Add(column, fmt.Sprintf("%s.%v", op, value))
	return q
}

func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder { return q.filter(column, "eq", value) }
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder { return q.filter(column, "neq", value) }
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder { return q.filter(column, "gt", value) }
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder { return q.filter(column, "gte", value) }
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder { return q.filter(column, "lt", value) }
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder { return q.filter(column, "lte", value) }

// Like matches with the SQL LIKE operator; Ilike is its case-insensitive form.
func (q *QueryBuilder) Like(column, pattern string) *QueryBuilder {
	return q.filter(column, "like", pattern)
}

func (q *QueryBuilder) Ilike(column, pattern string) *QueryBuilder {
	return q.filter(column, "ilike", pattern)
}

// Is checks against exact values such as null, true and false.
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return q.filter(column, "is", value)
}

// Match matches a full-text search query against a tsvector column.
func (q *QueryBuilder) Match(column, query string) *QueryBuilder {
	return q.filter(column, "fts", query)
}

// In matches rows whose column is any of values.
func (q *QueryBuilder) In(column string, values ...any) *QueryBuilder {
	ss := make([]string, len(values))
	for i, v := range values {
		ss[i] = fmt.Sprintf("%v", v)
	}
	q.params.Add(column, fmt.Sprintf("in.(%s)", strings.Join(ss, ",")))
	return q
}

// Contains matches array or range columns containing every element of values.
func (q *QueryBuilder) Contains(column string, values ...any) *QueryBuilder {
	ss := make([]string, len(values))
	for i, v := range values {
		ss[i] = fmt.Sprintf("%v", v)
	}
	q.params.Add(column, fmt.Sprintf("cs.{%s}", strings.Join(ss, ",")))
	return q
}

// Order sorts the result by column. Null ordering follows PostgreSQL
// defaults unless nullsFirst is set.
func (q *QueryBuilder) Order(column string, ascending, nullsFirst bool) *QueryBuilder {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	value := column + "." + dir
	if nullsFirst {
		value += ".nullsfirst"
	}
	q.params.Add("order", value)
	return q
}

// Limit caps the number of returned rows.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Range returns rows from to to, inclusive, using zero-based offsets.
func (q *QueryBuilder) Range(from, to int) *QueryBuilder {
	q.hasFrom = true
	q.from, q.to = from, to
	return q
}

// Single asks for exactly one row, decoded as an object rather than an array.
// The request fails when zero or more than one row matches.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count asks the database to compute the exact number of matching rows,
// returned by Execute alongside the decoded result.
func (q *QueryBuilder) Count() *QueryBuilder {
	q.count = true
	q.prefer = append(q.prefer, "count=exact")
	return q
}

// Execute sends the accumulated request. When dest is non-nil the response
// body is decoded into it. The returned count is -1 unless Count was
// requested.
func (q *QueryBuilder) Execute(ctx context.Context, dest any) (int64, error) {
	req := q.client.rest.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q.params)

	if q.body != nil {
		req.SetBody(q.body)
	}
	if len(q.prefer) > 0 {
		req.SetHeader("Prefer", strings.Join(q.prefer, ","))
	}
	if q.single {
		req.SetHeader("Accept", "application/vnd.pgrst.object+json")
	}
	if q.hasFrom {
		req.SetHeader("Range-Unit", "items")
		req.SetHeader("Range", fmt.Sprintf("%d-%d", q.from, q.to))
	}

	resp, err := req.Execute(q.method, "/"+q.table)
	if err != nil {
		return -1, err
	}
	if err := transport.AsError(resp); err != nil {
		return -1, err
	}

	q.client.logger.Debug("database request",
		"method", q.method, "table", q.table, "status", resp.StatusCode())

	if dest != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), dest); err != nil {
			return -1, fmt.Errorf("decoding response: %w", err)
		}
	}

	count := int64(-1)
	if q.count {
		count = parseContentRangeCount(resp.Header().Get("Content-Range"))
	}
	return count, nil
}

// parseContentRangeCount extracts the total from a "0-9/42" style header.
// It returns -1 when the total is absent or unparseable.
func parseContentRangeCount(contentRange string) int64 {
	_, total, found := strings.Cut(contentRange, "/")
	if !found || total == "*" {
		return -1
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
