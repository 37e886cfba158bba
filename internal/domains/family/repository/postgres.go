package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/pkg/database"
)

// querier: phần chung của *pgxpool.Pool và pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const personColumns = `id, hid, name, gender, father_id, mother_id, generation, sibling_order,
	status, birth_year, death_year, bio, family_origin, version, created_at, updated_at, deleted_at`

const groupColumns = `id, parent_id, actor_id, description, operation_count, created_at`

const entryColumns = `id, group_id, actor_id, target_id, action, old_data, new_data, seq, created_at, undone_at, undone_by`

const marriageColumns = `id, husband_id, wife_id, status, family_origin, created_at, deleted_at`

// ========================================
// STORE
// ========================================

type postgresStore struct {
	postgresReader
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewPostgresStore tạo Store dùng pgxpool
// statementTimeout giới hạn thời gian một batch giữ lock
func NewPostgresStore(pool *pgxpool.Pool, statementTimeout time.Duration) Store {
	return &postgresStore{
		postgresReader:   postgresReader{q: pool},
		pool:             pool,
		statementTimeout: statementTimeout,
	}
}

func (s *postgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	err := database.WithTransactionOptions(ctx, s.pool, database.Serializable(s.statementTimeout), func(tx pgx.Tx) error {
		return fn(&postgresTx{postgresReader: postgresReader{q: tx}})
	})
	return mapPgError(err)
}

// ========================================
// READER
// ========================================

type postgresReader struct {
	q querier
}

func (r postgresReader) GetActor(ctx context.Context, userID uuid.UUID) (*model.Actor, error) {
	query := `SELECT user_id, person_id, role FROM user_profiles WHERE user_id = $1`

	var a model.Actor
	err := r.q.QueryRow(ctx, query, userID).Scan(&a.UserID, &a.PersonID, &a.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrActorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	return &a, nil
}

func (r postgresReader) IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_blocks WHERE user_id = $1)`
	var blocked bool
	if err := r.q.QueryRow(ctx, query, userID).Scan(&blocked); err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return blocked, nil
}

func (r postgresReader) GetPerson(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	query := `SELECT ` + personColumns + ` FROM profiles WHERE id = $1 AND deleted_at IS NULL`
	return r.getPerson(ctx, query, id)
}

func (r postgresReader) GetPersonIncludingDeleted(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	query := `SELECT ` + personColumns + ` FROM profiles WHERE id = $1`
	return r.getPerson(ctx, query, id)
}

func (r postgresReader) getPerson(ctx context.Context, query string, id uuid.UUID) (*model.Person, error) {
	p, err := scanPerson(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

func (r postgresReader) ListChildren(ctx context.Context, parentID uuid.UUID) ([]model.Person, error) {
	query := `SELECT ` + personColumns + ` FROM profiles
		WHERE (father_id = $1 OR mother_id = $1) AND deleted_at IS NULL
		ORDER BY sibling_order, created_at`

	rows, err := r.q.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	children := make([]model.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, *p)
	}
	return children, rows.Err()
}

func (r postgresReader) CountChildren(ctx context.Context, parentID uuid.UUID, includeDeleted bool) (int, error) {
	query := `SELECT COUNT(*) FROM profiles
		WHERE (father_id = $1 OR mother_id = $1) AND ($2 OR deleted_at IS NULL)`
	var n int
	if err := r.q.QueryRow(ctx, query, parentID, includeDeleted).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

func (r postgresReader) MaxHIDSuffix(ctx context.Context, prefix string) (int, error) {
	query := `
		SELECT COALESCE(MAX(substr(hid, length($1) + 1)::bigint), 0)
		FROM profiles
		WHERE left(hid, length($1)) = $1
		  AND substr(hid, length($1) + 1) ~ '^[0-9]{1,18}$'`
	var n int64
	if err := r.q.QueryRow(ctx, query, prefix).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read max hid suffix: %w", err)
	}
	return int(n), nil
}

func (r postgresReader) ListModeratedBranches(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT branch_root_id FROM branch_moderators WHERE user_id = $1`
	return r.listIDs(ctx, query, userID)
}

func (r postgresReader) ListSpouseIDs(ctx context.Context, personID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT CASE WHEN husband_id = $1 THEN wife_id ELSE husband_id END
		FROM marriages
		WHERE (husband_id = $1 OR wife_id = $1) AND deleted_at IS NULL`
	return r.listIDs(ctx, query, personID)
}

func (r postgresReader) listIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r postgresReader) GetGroup(ctx context.Context, id uuid.UUID) (*model.OperationGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM operation_groups WHERE id = $1`

	var g model.OperationGroup
	err := r.q.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.ParentID, &g.ActorID, &g.Description, &g.OperationCount, &g.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation group: %w", err)
	}
	return &g, nil
}

func (r postgresReader) ListGroups(ctx context.Context, parentID uuid.UUID, limit int) ([]model.OperationGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM operation_groups
		WHERE parent_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.q.Query(ctx, query, parentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation groups: %w", err)
	}
	defer rows.Close()

	groups := make([]model.OperationGroup, 0)
	for rows.Next() {
		var g model.OperationGroup
		if err := rows.Scan(&g.ID, &g.ParentID, &g.ActorID, &g.Description, &g.OperationCount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r postgresReader) ListGroupEntries(ctx context.Context, groupID uuid.UUID) ([]model.AuditEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_log WHERE group_id = $1 ORDER BY seq`

	rows, err := r.q.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e       model.AuditEntry
			oldData []byte
			newData []byte
		)
		if err := rows.Scan(
			&e.ID, &e.GroupID, &e.ActorID, &e.TargetID, &e.Action,
			&oldData, &newData, &e.Seq, &e.CreatedAt, &e.UndoneAt, &e.UndoneBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.OldData, err = decodeSnapshot(oldData); err != nil {
			return nil, err
		}
		if e.NewData, err = decodeSnapshot(newData); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r postgresReader) GetMarriage(ctx context.Context, id uuid.UUID) (*model.Marriage, error) {
	query := `SELECT ` + marriageColumns + ` FROM marriages WHERE id = $1 AND deleted_at IS NULL`

	var m model.Marriage
	err := r.q.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.HusbandID, &m.WifeID, &m.Status, &m.FamilyOrigin, &m.CreatedAt, &m.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrMarriageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get marriage: %w", err)
	}
	return &m, nil
}

func (r postgresReader) ListMarriages(ctx context.Context) ([]model.Marriage, error) {
	query := `SELECT ` + marriageColumns + ` FROM marriages WHERE deleted_at IS NULL ORDER BY created_at`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list marriages: %w", err)
	}
	defer rows.Close()

	marriages := make([]model.Marriage, 0)
	for rows.Next() {
		var m model.Marriage
		if err := rows.Scan(&m.ID, &m.HusbandID, &m.WifeID, &m.Status, &m.FamilyOrigin, &m.CreatedAt, &m.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan marriage: %w", err)
		}
		marriages = append(marriages, m)
	}
	return marriages, rows.Err()
}

// ========================================
// TRANSACTION
// ========================================

type postgresTx struct {
	postgresReader
}

// LockAggregate - SELECT ... FOR UPDATE NOWAIT
// Postgres trả SQLSTATE 55P03 nếu row đang bị khóa => mapPgError => ErrResourceBusy
func (t *postgresTx) LockAggregate(ctx context.Context, parentID uuid.UUID, extraIDs []uuid.UUID) error {
	ids := make([]string, 0, len(extraIDs))
	for _, id := range extraIDs {
		ids = append(ids, id.String())
	}

	query := `
		SELECT id FROM profiles
		WHERE id = $1
		   OR ((father_id = $1 OR mother_id = $1) AND deleted_at IS NULL)
		   OR id = ANY($2::uuid[])
		ORDER BY id
		FOR UPDATE NOWAIT`

	rows, err := t.q.Query(ctx, query, parentID, pq.Array(ids))
	if err != nil {
		return mapPgError(fmt.Errorf("failed to lock aggregate: %w", err))
	}
	defer rows.Close()

	locked := false
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return mapPgError(fmt.Errorf("failed to lock aggregate: %w", err))
		}
		if id == parentID {
			locked = true
		}
	}
	if err := rows.Err(); err != nil {
		return mapPgError(fmt.Errorf("failed to lock aggregate: %w", err))
	}
	if !locked {
		return model.ErrPersonNotFound
	}
	return nil
}

func (t *postgresTx) InsertPerson(ctx context.Context, p *model.Person) error {
	query := `INSERT INTO profiles (` + personColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := t.q.Exec(ctx, query,
		p.ID, p.HID, p.Name, p.Gender, p.FatherID, p.MotherID, p.Generation, p.SiblingOrder,
		p.Status, p.BirthYear, p.DeathYear, p.Bio, p.FamilyOrigin, p.Version, p.CreatedAt, p.UpdatedAt, p.DeletedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("failed to insert person: %w", err))
	}
	return nil
}

func (t *postgresTx) UpdatePerson(ctx context.Context, p *model.Person, expectedVersion int) error {
	query := `
		UPDATE profiles
		SET hid = $1, name = $2, gender = $3, father_id = $4, mother_id = $5, generation = $6,
		    sibling_order = $7, status = $8, birth_year = $9, death_year = $10, bio = $11,
		    family_origin = $12, deleted_at = $13, updated_at = $14, version = $15
		WHERE id = $16 AND version = $17`

	result, err := t.q.Exec(ctx, query,
		p.HID, p.Name, p.Gender, p.FatherID, p.MotherID, p.Generation,
		p.SiblingOrder, p.Status, p.BirthYear, p.DeathYear, p.Bio,
		p.FamilyOrigin, p.DeletedAt, p.UpdatedAt, expectedVersion+1,
		p.ID, expectedVersion,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("failed to update person: %w", err))
	}
	if result.RowsAffected() == 0 {
		return model.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	return nil
}

func (t *postgresTx) InsertGroup(ctx context.Context, g *model.OperationGroup) error {
	query := `INSERT INTO operation_groups (` + groupColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.q.Exec(ctx, query, g.ID, g.ParentID, g.ActorID, g.Description, g.OperationCount, g.CreatedAt); err != nil {
		return mapPgError(fmt.Errorf("failed to insert operation group: %w", err))
	}
	return nil
}

func (t *postgresTx) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	oldData, err := encodeSnapshot(e.OldData)
	if err != nil {
		return err
	}
	newData, err := encodeSnapshot(e.NewData)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_log (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := t.q.Exec(ctx, query,
		e.ID, e.GroupID, e.ActorID, e.TargetID, e.Action,
		oldData, newData, e.Seq, e.CreatedAt, e.UndoneAt, e.UndoneBy,
	); err != nil {
		return mapPgError(fmt.Errorf("failed to insert audit entry: %w", err))
	}
	return nil
}

func (t *postgresTx) MarkGroupUndone(ctx context.Context, groupID, actorID uuid.UUID) (int, error) {
	query := `UPDATE audit_log SET undone_at = NOW(), undone_by = $2 WHERE group_id = $1 AND undone_at IS NULL`
	result, err := t.q.Exec(ctx, query, groupID, actorID)
	if err != nil {
		return 0, mapPgError(fmt.Errorf("failed to mark group undone: %w", err))
	}
	return int(result.RowsAffected()), nil
}

func (t *postgresTx) InsertMarriage(ctx context.Context, m *model.Marriage) error {
	query := `INSERT INTO marriages (` + marriageColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := t.q.Exec(ctx, query, m.ID, m.HusbandID, m.WifeID, m.Status, m.FamilyOrigin, m.CreatedAt, m.DeletedAt); err != nil {
		return mapPgError(fmt.Errorf("failed to insert marriage: %w", err))
	}
	return nil
}

// ========================================
// HELPERS
// ========================================

func scanPerson(row pgx.Row) (*model.Person, error) {
	var p model.Person
	err := row.Scan(
		&p.ID, &p.HID, &p.Name, &p.Gender, &p.FatherID, &p.MotherID, &p.Generation, &p.SiblingOrder,
		&p.Status, &p.BirthYear, &p.DeathYear, &p.Bio, &p.FamilyOrigin, &p.Version,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func encodeSnapshot(p *model.Person) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (*model.Person, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var p model.Person
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to decode audit snapshot: %w", err)
	}
	return &p, nil
}
