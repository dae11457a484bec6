package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// Query is a PostgREST request against one table.
type Query struct {
	client *Client
	table  string
	params url.Values
}

// From starts a query on table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, params: url.Values{}}
}

func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// Is adds an IS filter (null, true, false).
func (q *Query) Is(column, value string) *Query {
	q.params.Add(column, "is."+value)
	return q
}

// Order appends an ordering term; terms apply in call order.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	term := column + "." + dir
	if existing := q.params.Get("order"); existing != "" {
		term = existing + "," + term
	}
	q.params.Set("order", term)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// OnConflict names the columns an upsert resolves on.
func (q *Query) OnConflict(columns string) *Query {
	q.params.Set("on_conflict", columns)
	return q
}

// Params exposes the encoded query string, mainly for tests.
func (q *Query) Params() url.Values {
	return q.params
}

func (q *Query) path() string {
	return restPrefix + q.table
}

func (q *Query) request(ctx context.Context) *resty.Request {
	return q.client.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q.params)
}

// Execute runs a select and decodes the row array into out.
func (q *Query) Execute(ctx context.Context, out any) error {
	resp, err := q.request(ctx).Get(q.path())
	return decode(resp, err, "select "+q.table, out)
}

// Single runs a select that must match exactly one row.
func (q *Query) Single(ctx context.Context, out any) error {
	resp, err := q.request(ctx).
		SetHeader("Accept", singleObjectType).
		Get(q.path())
	return decode(resp, err, "select "+q.table, out)
}

// Insert adds one row and decodes the stored representation into out.
func (q *Query) Insert(ctx context.Context, row any, out any) error {
	resp, err := q.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", singleObjectType).
		SetHeader("Prefer", "return=representation").
		SetBody(row).
		Post(q.path())
	return decode(resp, err, "insert "+q.table, out)
}

// Upsert inserts or merges rows on the OnConflict columns.
func (q *Query) Upsert(ctx context.Context, row any) error {
	resp, err := q.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetBody(row).
		Post(q.path())
	return decode(resp, err, "upsert "+q.table, nil)
}

// Update patches the single row matched by the filters.
func (q *Query) Update(ctx context.Context, patch any, out any) error {
	resp, err := q.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", singleObjectType).
		SetHeader("Prefer", "return=representation").
		SetBody(patch).
		Patch(q.path())
	return decode(resp, err, "update "+q.table, out)
}

func decode(resp *resty.Response, err error, op string, out any) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
