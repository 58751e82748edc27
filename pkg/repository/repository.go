// Package repository cung cấp generic data-access layer trên bun.
// Mỗi domain repository embed Repository[T] và thêm query chuyên biệt.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"accesslog-backend/pkg/apperror"
)

// Repository là generic repository cho entity T.
// db là bun.IDB nên cùng một instance chạy được trên *bun.DB lẫn bun.Tx;
// unit of work tạo repository bound vào transaction của nó.
type Repository[T any] struct {
	db bun.IDB
}

func New[T any](db bun.IDB) *Repository[T] {
	return &Repository[T]{db: db}
}

// DB expose connection bên dưới cho domain repository cần build query tay.
func (r *Repository[T]) DB() bun.IDB { return r.db }

func (r *Repository[T]) table() *schema.Table {
	return r.db.Dialect().Tables().Get(reflect.TypeFor[T]())
}

func (r *Repository[T]) modelName() string {
	return r.table().TypeName
}

// ensureID gán UUID phía client khi entity chưa có id.
// Nhờ đó bulk insert không cần RETURNING để lấy id về.
func ensureID[T any](entity *T) {
	if e, ok := any(entity).(Entity); ok && e.EntityID() == "" {
		e.SetEntityID(uuid.NewString())
	}
}

// ========================================
// CREATE
// ========================================

func (r *Repository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	ensureID(entity)
	if _, err := r.db.NewInsert().Model(entity).Exec(ctx); err != nil {
		return nil, translate(err, "insert "+r.modelName())
	}
	return entity, nil
}

func (r *Repository[T]) BulkCreate(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return entities, nil
	}
	for _, e := range entities {
		ensureID(e)
	}
	if _, err := r.db.NewInsert().Model(&entities).Exec(ctx); err != nil {
		return nil, translate(err, "bulk insert "+r.modelName())
	}
	return entities, nil
}

// ========================================
// READ
// ========================================

// GetByID trả về (nil, nil) khi không tìm thấy.
// Eager load / partial column truyền qua opts.
func (r *Repository[T]) GetByID(ctx context.Context, id string, opts ...QueryOption) (*T, error) {
	entity := new(T)
	q := r.db.NewSelect().Model(entity).Where("?TableAlias.id = ?", id)
	q = buildConfig(opts).apply(q)
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(err, "select "+r.modelName())
	}
	return entity, nil
}

// GetByIDOrErr là GetByID nhưng missing record là NotFound error,
// dành cho call site mà record bắt buộc phải tồn tại.
func (r *Repository[T]) GetByIDOrErr(ctx context.Context, id string, opts ...QueryOption) (*T, error) {
	entity, err := r.GetByID(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, apperror.NotFound(fmt.Sprintf("%s not found", r.modelName())).
			WithDetail(map[string]string{"model": r.modelName(), "id": id})
	}
	return entity, nil
}

// GetOne trả về record duy nhất match filters, (nil, nil) khi không có.
// Nhiều hơn một match là lỗi — filter không đủ hẹp là bug ở call site.
func (r *Repository[T]) GetOne(ctx context.Context, filters Filters, opts ...QueryOption) (*T, error) {
	var out []*T
	q := r.db.NewSelect().Model(&out)
	q = applyFilters(q, filters)
	q = buildConfig(opts).apply(q).Limit(2)
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err, "select "+r.modelName())
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return nil, apperror.Internal(fmt.Sprintf("expected at most one %s", r.modelName())).
			WithDetail(map[string]any{"filters": filters})
	}
}

func (r *Repository[T]) GetMany(ctx context.Context, filters Filters, opts ...QueryOption) ([]*T, error) {
	var out []*T
	q := r.db.NewSelect().Model(&out)
	q = applyFilters(q, filters)
	q = buildConfig(opts).apply(q)
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err, "select "+r.modelName())
	}
	return out, nil
}

func (r *Repository[T]) GetAll(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	return r.GetMany(ctx, nil, opts...)
}

func (r *Repository[T]) Count(ctx context.Context, filters Filters) (int, error) {
	q := r.db.NewSelect().Model((*T)(nil))
	q = applyFilters(q, filters)
	n, err := q.Count(ctx)
	if err != nil {
		return 0, translate(err, "count "+r.modelName())
	}
	return n, nil
}

func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	return r.ExistsBy(ctx, Filters{"id": id})
}

func (r *Repository[T]) ExistsBy(ctx context.Context, filters Filters) (bool, error) {
	q := r.db.NewSelect().Model((*T)(nil))
	q = applyFilters(q, filters)
	ok, err := q.Exists(ctx)
	if err != nil {
		return false, translate(err, "exists "+r.modelName())
	}
	return ok, nil
}

// GetInBatches quét toàn bộ record match filters theo từng batch,
// order theo id để các batch deterministic. fn trả error thì dừng sweep.
//
// Sweep dùng offset nên record được insert/delete song song có thể bị
// skip hoặc lặp giữa các batch; caller cần snapshot chính xác phải tự
// mở transaction.
func (r *Repository[T]) GetInBatches(ctx context.Context, filters Filters, batchSize int, fn func(batch []*T) error) error {
	if batchSize <= 0 {
		return apperror.InvalidOperation("batch size must be positive")
	}
	for offset := 0; ; offset += batchSize {
		batch, err := r.GetMany(ctx, filters,
			WithOrder("id ASC"),
			WithLimit(batchSize),
			WithOffset(offset),
		)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

// GetWithJoin filter entity theo điều kiện trên bảng quan hệ bằng
// INNER JOIN. Relation có tên trong relations được hydrate thẳng từ
// joined row set — một câu SQL duy nhất, không có follow-up select.
// relations rỗng thì join chỉ filter, không hydrate (WithLoads vẫn
// dùng được nhưng sẽ chạy query riêng cho to-many).
//
// Hydrate tối đa một relation mỗi call; relation đó phải nằm trong
// joins. Hydrate nhiều to-many từ một row set tạo cartesian product
// nên bị chặn từ đầu.
func (r *Repository[T]) GetWithJoin(ctx context.Context, joins []Join, relations []string, filters Filters, opts ...QueryOption) ([]*T, error) {
	table := r.table()

	if len(relations) > 1 {
		return nil, apperror.InvalidOperation("at most one relation can be hydrated per joined query")
	}

	joined := make(map[string]Join, len(joins))
	for _, j := range joins {
		if _, ok := table.Relations[j.Relation]; !ok {
			return nil, apperror.InvalidOperation(fmt.Sprintf("unknown relation %q on %s", j.Relation, r.modelName()))
		}
		joined[j.Relation] = j
	}

	if len(relations) == 1 {
		j, ok := joined[relations[0]]
		if !ok {
			return nil, apperror.InvalidOperation(fmt.Sprintf("relation %q must be joined before it can be hydrated", relations[0]))
		}
		return r.getWithJoinHydrated(ctx, joins, j, filters, opts)
	}

	var out []*T
	q := r.db.NewSelect().Model(&out)
	for _, j := range joins {
		q = r.applyManualJoin(q, table.Relations[j.Relation], j)
	}
	q = applyFilters(q, filters)
	q = buildConfig(opts).apply(q)
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err, "select with join "+r.modelName())
	}
	return out, nil
}

func (r *Repository[T]) applyManualJoin(q *bun.SelectQuery, rel *schema.Relation, j Join) *bun.SelectQuery {
	q = q.Join("JOIN ? AS ?", rel.JoinTable.SQLName, rel.JoinTable.SQLAlias)
	for i := range rel.BasePKs {
		q = q.JoinOn("?TableAlias.? = ?.?",
			rel.BasePKs[i].SQLName, rel.JoinTable.SQLAlias, rel.JoinPKs[i].SQLName)
	}
	for col, val := range j.Filters {
		q = q.Where("?.? = ?", rel.JoinTable.SQLAlias, bun.Ident(col), val)
	}
	return q
}

// getWithJoinHydrated chạy đúng một SELECT và gán relation từ joined
// rows. To-one đi thẳng qua join của ORM; to-many lật query sang phía
// many (bảng quan hệ JOIN bảng gốc) rồi fold ngược lại theo id gốc —
// mỗi joined row là một phần tử của relation slice.
func (r *Repository[T]) getWithJoinHydrated(ctx context.Context, joins []Join, hydrated Join, filters Filters, opts []QueryOption) ([]*T, error) {
	table := r.table()
	rel := table.Relations[hydrated.Relation]

	switch rel.Type {
	case schema.HasOneRelation, schema.BelongsToRelation:
		return r.hydrateToOne(ctx, joins, hydrated, rel, filters, opts)
	case schema.HasManyRelation:
		if len(joins) > 1 {
			return nil, apperror.InvalidOperation("hydrating a to-many relation supports a single join")
		}
		return r.hydrateToMany(ctx, hydrated, rel, filters, opts)
	default:
		return nil, apperror.InvalidOperation(fmt.Sprintf("relation %q cannot be hydrated from a joined query", hydrated.Relation))
	}
}

// hydrateToOne: Relation() của bun join bảng quan hệ và scan cột của nó
// từ cùng row set — không phát sinh query thứ hai cho to-one. Filter
// bám vào alias join của ORM; IS NOT NULL ép semantics về INNER JOIN.
func (r *Repository[T]) hydrateToOne(ctx context.Context, joins []Join, hydrated Join, rel *schema.Relation, filters Filters, opts []QueryOption) ([]*T, error) {
	table := r.table()
	alias := bun.Ident(underscore(rel.Field.GoName))

	var out []*T
	q := r.db.NewSelect().Model(&out).Relation(hydrated.Relation)
	q = q.Where("?.? IS NOT NULL", alias, rel.JoinPKs[0].SQLName)
	for col, val := range hydrated.Filters {
		q = q.Where("?.? = ?", alias, bun.Ident(col), val)
	}
	for _, j := range joins {
		if j.Relation == hydrated.Relation {
			continue
		}
		q = r.applyManualJoin(q, table.Relations[j.Relation], j)
	}
	q = applyFilters(q, filters)
	q = buildConfig(opts).apply(q)
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err, "select with join "+r.modelName())
	}
	return out, nil
}

// hydrateToMany lật sang phía many: select các row quan hệ, hydrate
// entity gốc qua relation ngược (to-one, cùng một JOIN), rồi group các
// row theo id gốc vào relation slice. Vẫn là một SELECT duy nhất.
func (r *Repository[T]) hydrateToMany(ctx context.Context, hydrated Join, rel *schema.Relation, filters Filters, opts []QueryOption) ([]*T, error) {
	table := r.table()

	var reverseName string
	var reverse *schema.Relation
	for name, candidate := range rel.JoinTable.Relations {
		if candidate.JoinTable == table &&
			(candidate.Type == schema.BelongsToRelation || candidate.Type == schema.HasOneRelation) {
			reverseName, reverse = name, candidate
			break
		}
	}
	if reverse == nil {
		return nil, apperror.InvalidOperation(fmt.Sprintf("relation %q has no reverse to-one relation to hydrate through", hydrated.Relation))
	}

	manyPtr := reflect.New(reflect.SliceOf(reflect.PointerTo(rel.JoinTable.Type)))
	q := r.db.NewSelect().Model(manyPtr.Interface()).Relation(reverseName)

	// filter của join áp lên phía many (table alias của query này)
	q = applyFilters(q, hydrated.Filters)
	// filter gốc áp lên alias join của relation ngược
	baseAlias := bun.Ident(underscore(reverse.Field.GoName))
	for col, val := range filters {
		q = q.Where("?.? = ?", baseAlias, bun.Ident(col), val)
	}
	// order/limit của opts áp lên joined rows
	q = buildConfig(opts).apply(q)
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err, "select with join "+r.modelName())
	}

	many := manyPtr.Elem()
	var out []*T
	index := make(map[string]*T)
	for i := 0; i < many.Len(); i++ {
		row := many.Index(i)
		baseVal := reverse.Field.Value(row.Elem())
		if baseVal.IsNil() {
			continue
		}
		base, ok := baseVal.Interface().(*T)
		if !ok {
			return nil, apperror.Internal("joined row does not reference " + r.modelName())
		}
		ent, ok := any(base).(Entity)
		if !ok {
			return nil, apperror.Internal(r.modelName() + " does not expose an entity id")
		}

		canonical, seen := index[ent.EntityID()]
		if !seen {
			canonical = base
			index[ent.EntityID()] = canonical
			out = append(out, canonical)
		}
		slot := rel.Field.Value(reflect.ValueOf(canonical).Elem())
		slot.Set(reflect.Append(slot, row))
	}
	return out, nil
}

// underscore đổi Go field name thành join alias của bun
// ("User" -> "user", "VisitorSession" -> "visitor_session").
func underscore(s string) string {
	out := make([]byte, 0, len(s)+3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			prevLower := i > 0 && (s[i-1] < 'A' || s[i-1] > 'Z')
			nextLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				out = append(out, '_')
			}
			out = append(out, c+'a'-'A')
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}

// RelationCount ghép entity với số record của một to-many relation.
type RelationCount[T any] struct {
	Entity *T
	Count  int
}

// CountRelated trả về mỗi entity match filters kèm số record của
// relation. Chạy hai query: LEFT JOIN + GROUP BY lấy count theo id,
// rồi fetch entity theo id và zip lại — tránh scan cả entity lẫn
// aggregate trong cùng một result set.
func (r *Repository[T]) CountRelated(ctx context.Context, relation string, filters Filters) ([]RelationCount[T], error) {
	table := r.table()
	rel, ok := table.Relations[relation]
	if !ok {
		return nil, apperror.InvalidOperation(fmt.Sprintf("unknown relation %q on %s", relation, r.modelName()))
	}

	var rows []struct {
		ID    string `bun:"id"`
		Count int    `bun:"relation_count"`
	}
	q := r.db.NewSelect().Model((*T)(nil)).
		ColumnExpr("?TableAlias.id AS id").
		ColumnExpr("COUNT(?.?) AS relation_count", rel.JoinTable.SQLAlias, rel.JoinPKs[0].SQLName).
		Join("LEFT JOIN ? AS ?", rel.JoinTable.SQLName, rel.JoinTable.SQLAlias)
	for i := range rel.BasePKs {
		q = q.JoinOn("?TableAlias.? = ?.?",
			rel.BasePKs[i].SQLName, rel.JoinTable.SQLAlias, rel.JoinPKs[i].SQLName)
	}
	q = applyFilters(q, filters)
	q = q.GroupExpr("?TableAlias.id").OrderExpr("?TableAlias.id ASC")
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, translate(err, "count related "+r.modelName())
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	entities, err := r.GetMany(ctx, Filters{"id": ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*T, len(entities))
	for _, e := range entities {
		if ent, ok := any(e).(Entity); ok {
			byID[ent.EntityID()] = e
		}
	}

	out := make([]RelationCount[T], 0, len(rows))
	for _, row := range rows {
		out = append(out, RelationCount[T]{Entity: byID[row.ID], Count: row.Count})
	}
	return out, nil
}

// ========================================
// UPDATE
// ========================================

// Update set các cột trong values rồi trả về record sau khi update.
// Trả về (nil, nil) khi id không tồn tại.
func (r *Repository[T]) Update(ctx context.Context, id string, values map[string]any) (*T, error) {
	if len(values) == 0 {
		return r.GetByID(ctx, id)
	}
	q := r.db.NewUpdate().Model((*T)(nil)).Where("id = ?", id)
	for col, val := range values {
		q = q.Set("? = ?", bun.Ident(col), val)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, translate(err, "update "+r.modelName())
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// BulkUpdate ghi lại toàn bộ cột của từng entity theo primary key.
func (r *Repository[T]) BulkUpdate(ctx context.Context, entities []*T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	res, err := r.db.NewUpdate().Model(&entities).Bulk().Exec(ctx)
	if err != nil {
		return 0, translate(err, "bulk update "+r.modelName())
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdateBy set values cho mọi record match filters, trả về số record đổi.
func (r *Repository[T]) UpdateBy(ctx context.Context, filters Filters, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	q := r.db.NewUpdate().Model((*T)(nil))
	for col, val := range values {
		q = q.Set("? = ?", bun.Ident(col), val)
	}
	for _, c := range filters.clauses() {
		q = q.Where(c.expr, c.args...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, translate(err, "update "+r.modelName())
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ========================================
// DELETE
// ========================================

// Delete trả về true nếu có record bị xoá.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().Model((*T)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, translate(err, "delete "+r.modelName())
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repository[T]) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.NewDelete().Model((*T)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, translate(err, "bulk delete "+r.modelName())
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository[T]) DeleteBy(ctx context.Context, filters Filters) (int64, error) {
	q := r.db.NewDelete().Model((*T)(nil))
	for _, c := range filters.clauses() {
		q = q.Where(c.expr, c.args...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, translate(err, "delete "+r.modelName())
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ========================================
// UPSERT-STYLE HELPERS
// ========================================

// GetOrCreate tìm record theo filters, không có thì insert entity.
// Trả về (record, created, error). Check-then-act: hai caller đua nhau
// thì kẻ thua nhận Duplicate từ unique constraint thay vì silent merge.
func (r *Repository[T]) GetOrCreate(ctx context.Context, filters Filters, entity *T) (*T, bool, error) {
	existing, err := r.GetOne(ctx, filters)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	created, err := r.Create(ctx, entity)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// UpdateOrCreate update record match filters với values, không có thì
// insert entity. Trả về (record, created, error).
func (r *Repository[T]) UpdateOrCreate(ctx context.Context, filters Filters, values map[string]any, entity *T) (*T, bool, error) {
	existing, err := r.GetOne(ctx, filters)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		created, err := r.Create(ctx, entity)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	id := any(existing).(Entity).EntityID()
	updated, err := r.Update(ctx, id, values)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}
