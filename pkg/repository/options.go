package repository

import (
	"github.com/uptrace/bun"
)

// Filters map column name -> giá trị cần match.
//   - nil value      => IS NULL
//   - slice value    => IN (...)
//   - scalar value   => = value
//
// Column name luôn được quote qua bun.Ident nên filter key không bao giờ
// được nối trực tiếp vào SQL.
type Filters map[string]any

// Load mô tả một relation cần eager load. Relation hỗ trợ nested path
// kiểu "Session.Logs". Columns rỗng nghĩa là load toàn bộ cột.
//
// SelectIn/Joined/Subquery là alias đặt tên theo intent của call site;
// engine bên dưới tự chọn giữa join và follow-up select tuỳ
// cardinality nên cả ba cho cùng kết quả.
type Load struct {
	Relation string
	Columns  []string
}

func SelectIn(relation string, columns ...string) Load {
	return Load{Relation: relation, Columns: columns}
}

func Joined(relation string, columns ...string) Load {
	return Load{Relation: relation, Columns: columns}
}

func Subquery(relation string, columns ...string) Load {
	return Load{Relation: relation, Columns: columns}
}

// Join mô tả một INNER JOIN cho GetWithJoin: filter parent theo điều
// kiện trên bảng join; relation nào cần hydrate từ joined rows thì
// khai báo thêm trong tham số relations của GetWithJoin.
type Join struct {
	// Relation name trên model (vd "Session"); dùng để resolve bảng
	// và điều kiện join từ schema.
	Relation string
	// Filters áp lên bảng được join.
	Filters Filters
}

type queryConfig struct {
	limit   int
	offset  int
	orderBy []string
	columns []string
	loads   []Load
}

// QueryOption tinh chỉnh các query trả về nhiều record.
type QueryOption func(*queryConfig)

func WithLimit(n int) QueryOption {
	return func(c *queryConfig) { c.limit = n }
}

func WithOffset(n int) QueryOption {
	return func(c *queryConfig) { c.offset = n }
}

// WithOrder nhận order expression kiểu "created_at DESC".
func WithOrder(exprs ...string) QueryOption {
	return func(c *queryConfig) { c.orderBy = append(c.orderBy, exprs...) }
}

// WithColumns giới hạn cột được select (partial load).
func WithColumns(cols ...string) QueryOption {
	return func(c *queryConfig) { c.columns = append(c.columns, cols...) }
}

// WithLoads eager load các relation kèm theo.
func WithLoads(loads ...Load) QueryOption {
	return func(c *queryConfig) { c.loads = append(c.loads, loads...) }
}

func buildConfig(opts []QueryOption) *queryConfig {
	c := &queryConfig{limit: -1, offset: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *queryConfig) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if len(c.columns) > 0 {
		q = q.Column(c.columns...)
	}
	for _, load := range c.loads {
		q = applyLoad(q, load)
	}
	for _, expr := range c.orderBy {
		q = q.Order(expr)
	}
	if c.limit >= 0 {
		q = q.Limit(c.limit)
	}
	if c.offset >= 0 {
		q = q.Offset(c.offset)
	}
	return q
}

func applyLoad(q *bun.SelectQuery, load Load) *bun.SelectQuery {
	if len(load.Columns) == 0 {
		return q.Relation(load.Relation)
	}
	cols := load.Columns
	return q.Relation(load.Relation, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Column(cols...)
	})
}

type clause struct {
	expr string
	args []any
}

// clauses convert filters thành các WHERE fragment dùng chung cho
// select / update / delete query.
func (f Filters) clauses() []clause {
	out := make([]clause, 0, len(f))
	for col, val := range f {
		switch {
		case val == nil:
			out = append(out, clause{"? IS NULL", []any{bun.Ident(col)}})
		case isSlice(val):
			out = append(out, clause{"? IN (?)", []any{bun.Ident(col), bun.In(val)}})
		default:
			out = append(out, clause{"? = ?", []any{bun.Ident(col), val}})
		}
	}
	return out
}

// applyFilters qualify column bằng table alias vì select query có thể
// kèm join (eager load, GetWithJoin) gây ambiguous column.
func applyFilters(q *bun.SelectQuery, filters Filters) *bun.SelectQuery {
	for col, val := range filters {
		switch {
		case val == nil:
			q = q.Where("?TableAlias.? IS NULL", bun.Ident(col))
		case isSlice(val):
			q = q.Where("?TableAlias.? IN (?)", bun.Ident(col), bun.In(val))
		default:
			q = q.Where("?TableAlias.? = ?", bun.Ident(col), val)
		}
	}
	return q
}

func isSlice(v any) bool {
	switch v.(type) {
	case []string, []int, []int64, []any:
		return true
	}
	return false
}
