package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

var sqlOpen = sql.Open

// Options configures Open.
type Options struct {
	StaleAfter time.Duration
	Logger     zerolog.Logger
	// Configure tunes a freshly opened handle (pool sizes and pragmas).
	Configure func(*sql.DB)
}

// Store persists the reaction network in relational tables.
type Store struct {
	conn *Conn
	d    Dialect
}

// New wraps an existing connection. The schema must already be migrated.
func New(conn *Conn, d Dialect) *Store {
	return &Store{conn: conn, d: d}
}

// Open connects using the dialect driver, applies migrations and returns the
// store.
func Open(ctx context.Context, d Dialect, dsn string, opts Options) (*Store, error) {
	opener := func(ctx context.Context) (*sql.DB, error) {
		db, err := sqlOpen(d.Driver, dsn)
		if err != nil {
			return nil, err
		}
		if opts.Configure != nil {
			opts.Configure(db)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	conn := NewConn(opener, ConnOptions{
		StaleAfter:  opts.StaleAfter,
		Logger:      opts.Logger,
		IsTransient: d.transient,
	})
	db, err := conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, d); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return New(conn, d), nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.d.uniqueViolation(err) {
		return errors.Wrap(domain.ErrDuplicate, op)
	}
	var tce *domain.TransientConnectivityError
	if errors.As(err, &tce) {
		return err
	}
	return errors.Wrap(err, op)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.conn.Write(ctx, op, func(db *sql.DB) error {
		var err error
		res, err = db.ExecContext(ctx, s.d.Rebind(query), args...)
		return err
	})
	return res, s.wrap(op, err)
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	err := s.conn.Write(ctx, op, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	return s.wrap(op, err)
}

// scanRow returns sql.ErrNoRows unwrapped so callers can test for absence.
func (s *Store) scanRow(ctx context.Context, query string, args []any, dest ...any) error {
	return s.conn.Read(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, s.d.Rebind(query), args...).Scan(dest...)
	})
}

func (s *Store) query(ctx context.Context, op, query string, args []any, each func(*sql.Rows) error) error {
	err := s.conn.Read(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, s.d.Rebind(query), args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			if err := each(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	return s.wrap(op, err)
}

func (s *Store) listStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	out := []string{}
	err := s.query(ctx, op, query, args, func(rows *sql.Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func entityPtr(v sql.NullInt64) *domain.EntityID {
	if !v.Valid {
		return nil
	}
	id := domain.EntityID(v.Int64)
	return &id
}

// References.

func (s *Store) EnsureReference(ctx context.Context, urn string) (domain.Reference, error) {
	if _, err := s.exec(ctx, "ensure reference",
		`INSERT INTO refs (urn) VALUES (?) ON CONFLICT (urn) DO NOTHING`, urn); err != nil {
		return domain.Reference{}, err
	}
	var bound sql.NullInt64
	if err := s.scanRow(ctx, `SELECT entity_id FROM refs WHERE urn = ?`, []any{urn}, &bound); err != nil {
		return domain.Reference{}, s.wrap("load reference", err)
	}
	return domain.Reference{URN: urn, Entity: entityPtr(bound)}, nil
}

func (s *Store) BoundEntity(ctx context.Context, urn string) (domain.EntityID, bool, error) {
	var bound sql.NullInt64
	err := s.scanRow(ctx, `SELECT entity_id FROM refs WHERE urn = ?`, []any{urn}, &bound)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, s.wrap("bound entity", err)
	}
	if !bound.Valid {
		return 0, false, nil
	}
	return domain.EntityID(bound.Int64), true, nil
}

func (s *Store) BindReference(ctx context.Context, urn string, id domain.EntityID) error {
	_, err := s.exec(ctx, "bind reference",
		`INSERT INTO refs (urn, entity_id) VALUES (?, ?)
		 ON CONFLICT (urn) DO UPDATE SET entity_id = excluded.entity_id`, urn, int64(id))
	return err
}

func (s *Store) UnbindReference(ctx context.Context, urn string) error {
	_, err := s.exec(ctx, "unbind reference", `UPDATE refs SET entity_id = NULL WHERE urn = ?`, urn)
	return err
}

func (s *Store) ReferencesOf(ctx context.Context, id domain.EntityID) ([]string, error) {
	return s.listStrings(ctx, "references of entity",
		`SELECT urn FROM refs WHERE entity_id = ? ORDER BY urn`, int64(id))
}

func (s *Store) RebindReferences(ctx context.Context, from, to domain.EntityID) error {
	_, err := s.exec(ctx, "rebind references",
		`UPDATE refs SET entity_id = ? WHERE entity_id = ?`, int64(to), int64(from))
	return err
}

func (s *Store) AddReferenceSource(ctx context.Context, urn, source string) error {
	_, err := s.exec(ctx, "add reference source",
		`INSERT INTO ref_sources (urn, source) VALUES (?, ?)`, urn, source)
	return err
}

func (s *Store) ReferenceSources(ctx context.Context, urn string) ([]string, error) {
	return s.listStrings(ctx, "reference sources",
		`SELECT source FROM ref_sources WHERE urn = ? ORDER BY source`, urn)
}

// Entities and names.

func (s *Store) CreateEntity(ctx context.Context, t domain.EntityType) (domain.EntityID, error) {
	if !t.Valid() {
		return 0, errors.Errorf("unknown entity type %q", t)
	}
	var id int64
	err := s.conn.Write(ctx, "create entity", func(db *sql.DB) error {
		return db.QueryRowContext(ctx, s.d.Rebind(`INSERT INTO entities (type) VALUES (?) RETURNING id`), string(t)).Scan(&id)
	})
	if err != nil {
		return 0, s.wrap("create entity", err)
	}
	return domain.EntityID(id), nil
}

func (s *Store) EntityTypes(ctx context.Context, ids []domain.EntityID) (map[domain.EntityID]domain.EntityType, error) {
	out := make(map[domain.EntityID]domain.EntityType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	err := s.query(ctx, "entity types",
		`SELECT id, type FROM entities WHERE id IN (`+placeholders(len(ids))+`)`, args,
		func(rows *sql.Rows) error {
			var id int64
			var t string
			if err := rows.Scan(&id, &t); err != nil {
				return err
			}
			out[domain.EntityID(id)] = domain.EntityType(t)
			return nil
		})
	return out, err
}

func (s *Store) AddName(ctx context.Context, name domain.Name) error {
	_, err := s.exec(ctx, "add name",
		`INSERT INTO names (entity_id, label, source) VALUES (?, ?, ?)`,
		int64(name.Entity), name.Label, name.Source)
	return err
}

func (s *Store) Names(ctx context.Context, id domain.EntityID) ([]domain.Name, error) {
	var out []domain.Name
	err := s.query(ctx, "names", `SELECT label, source FROM names WHERE entity_id = ? ORDER BY label`,
		[]any{int64(id)}, func(rows *sql.Rows) error {
			n := domain.Name{Entity: id}
			if err := rows.Scan(&n.Label, &n.Source); err != nil {
				return err
			}
			out = append(out, n)
			return nil
		})
	return out, err
}

func (s *Store) MoveNames(ctx context.Context, from, to domain.EntityID) error {
	return s.inTx(ctx, "move names", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.d.Rebind(
			`INSERT INTO names (entity_id, label, source)
			 SELECT CAST(? AS BIGINT), label, source FROM names WHERE entity_id = ?
			 ON CONFLICT (entity_id, label) DO NOTHING`), int64(to), int64(from)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.d.Rebind(`DELETE FROM names WHERE entity_id = ?`), int64(from))
		return err
	})
}

// Substances and participations.

func (s *Store) Substance(ctx context.Context, id domain.EntityID) (domain.Substance, bool, error) {
	var text sql.NullString
	err := s.scanRow(ctx, `SELECT formula FROM substances WHERE id = ?`, []any{int64(id)}, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Substance{}, false, nil
	}
	if err != nil {
		return domain.Substance{}, false, s.wrap("load substance", err)
	}
	sub := domain.Substance{ID: id}
	if text.Valid && text.String != "" {
		f, err := formula.Parse(text.String)
		if err != nil {
			return domain.Substance{}, false, errors.Wrapf(err, "stored formula of substance %d", id)
		}
		sub.Formula = &f
	}
	return sub, true, nil
}

func formulaValue(f *formula.Formula) any {
	if f == nil {
		return nil
	}
	return f.String()
}

func (s *Store) PutSubstance(ctx context.Context, sub domain.Substance) error {
	_, err := s.exec(ctx, "put substance",
		`INSERT INTO substances (id, formula) VALUES (?, ?)`, int64(sub.ID), formulaValue(sub.Formula))
	return err
}

func (s *Store) FillFormula(ctx context.Context, id domain.EntityID, f formula.Formula) error {
	_, err := s.exec(ctx, "fill formula",
		`UPDATE substances SET formula = ? WHERE id = ? AND formula IS NULL`, f.String(), int64(id))
	return err
}

func (s *Store) DeleteSubstance(ctx context.Context, id domain.EntityID) error {
	_, err := s.exec(ctx, "delete substance", `DELETE FROM substances WHERE id = ?`, int64(id))
	return err
}

func (s *Store) AddParticipation(ctx context.Context, p domain.Participation) error {
	_, err := s.exec(ctx, "add participation",
		`INSERT INTO participations (substance_id, reaction_id, role, coefficient) VALUES (?, ?, ?, ?)`,
		int64(p.Substance), int64(p.Reaction), string(p.Role), p.Coefficient.String())
	return err
}

func (s *Store) Participations(ctx context.Context, substance domain.EntityID, role domain.Role) ([]domain.Participation, error) {
	var out []domain.Participation
	err := s.query(ctx, "participations",
		`SELECT reaction_id, coefficient FROM participations WHERE substance_id = ? AND role = ? ORDER BY reaction_id`,
		[]any{int64(substance), string(role)}, func(rows *sql.Rows) error {
			var reaction int64
			var coef decimal.Decimal
			if err := rows.Scan(&reaction, &coef); err != nil {
				return err
			}
			out = append(out, domain.Participation{Substance: substance, Reaction: domain.EntityID(reaction), Role: role, Coefficient: coef})
			return nil
		})
	return out, err
}

func (s *Store) Participation(ctx context.Context, substance, reaction domain.EntityID, role domain.Role) (domain.Participation, bool, error) {
	var coef decimal.Decimal
	err := s.scanRow(ctx,
		`SELECT coefficient FROM participations WHERE substance_id = ? AND reaction_id = ? AND role = ?`,
		[]any{int64(substance), int64(reaction), string(role)}, &coef)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participation{}, false, nil
	}
	if err != nil {
		return domain.Participation{}, false, s.wrap("load participation", err)
	}
	return domain.Participation{Substance: substance, Reaction: reaction, Role: role, Coefficient: coef}, true, nil
}

func (s *Store) SetCoefficient(ctx context.Context, substance, reaction domain.EntityID, role domain.Role, coefficient decimal.Decimal) error {
	_, err := s.exec(ctx, "set coefficient",
		`UPDATE participations SET coefficient = ? WHERE substance_id = ? AND reaction_id = ? AND role = ?`,
		coefficient.String(), int64(substance), int64(reaction), string(role))
	return err
}

func (s *Store) RepointParticipation(ctx context.Context, from, to, reaction domain.EntityID, role domain.Role) error {
	_, err := s.exec(ctx, "repoint participation",
		`UPDATE participations SET substance_id = ? WHERE substance_id = ? AND reaction_id = ? AND role = ?`,
		int64(to), int64(from), int64(reaction), string(role))
	return err
}

func (s *Store) DeleteParticipations(ctx context.Context, substance domain.EntityID, role domain.Role) error {
	_, err := s.exec(ctx, "delete participations",
		`DELETE FROM participations WHERE substance_id = ? AND role = ?`, int64(substance), string(role))
	return err
}

// Enzymes, compartments and reactions.

func (s *Store) PutEnzyme(ctx context.Context, e domain.Enzyme) error {
	var substance any
	if e.Substance != nil {
		substance = int64(*e.Substance)
	}
	_, err := s.exec(ctx, "put enzyme",
		`INSERT INTO enzymes (id, ec, substance_id) VALUES (?, ?, ?)`, int64(e.ID), e.EC, substance)
	return err
}

func (s *Store) Enzyme(ctx context.Context, id domain.EntityID) (domain.Enzyme, bool, error) {
	e := domain.Enzyme{ID: id}
	var substance sql.NullInt64
	err := s.scanRow(ctx, `SELECT ec, substance_id FROM enzymes WHERE id = ?`, []any{int64(id)}, &e.EC, &substance)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Enzyme{}, false, nil
	}
	if err != nil {
		return domain.Enzyme{}, false, s.wrap("load enzyme", err)
	}
	e.Substance = entityPtr(substance)
	return e, true, nil
}

func (s *Store) PutCompartment(ctx context.Context, c domain.Compartment) error {
	_, err := s.exec(ctx, "put compartment",
		`INSERT INTO compartments (id, group_name) VALUES (?, ?)`, int64(c.ID), c.Group)
	return err
}

func (s *Store) Compartment(ctx context.Context, id domain.EntityID) (domain.Compartment, bool, error) {
	c := domain.Compartment{ID: id}
	err := s.scanRow(ctx, `SELECT group_name FROM compartments WHERE id = ?`, []any{int64(id)}, &c.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Compartment{}, false, nil
	}
	if err != nil {
		return domain.Compartment{}, false, s.wrap("load compartment", err)
	}
	return c, true, nil
}

func (s *Store) PutReaction(ctx context.Context, r domain.Reaction) error {
	_, err := s.exec(ctx, "put reaction",
		`INSERT INTO reactions (id, spontaneous) VALUES (?, ?)`, int64(r.ID), r.Spontaneous)
	return err
}

func (s *Store) Reaction(ctx context.Context, id domain.EntityID) (domain.Reaction, bool, error) {
	r := domain.Reaction{ID: id}
	err := s.scanRow(ctx, `SELECT spontaneous FROM reactions WHERE id = ?`, []any{int64(id)}, &r.Spontaneous)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reaction{}, false, nil
	}
	if err != nil {
		return domain.Reaction{}, false, s.wrap("load reaction", err)
	}
	return r, true, nil
}

func (s *Store) MarkSpontaneous(ctx context.Context, id domain.EntityID) error {
	_, err := s.exec(ctx, "mark spontaneous", `UPDATE reactions SET spontaneous = ? WHERE id = ?`, true, int64(id))
	return err
}

// Decisions.

func (s *Store) PutDecision(ctx context.Context, d domain.Decision) error {
	_, err := s.exec(ctx, "put decision",
		`INSERT INTO decisions (resolution_key, verdict, automatic) VALUES (?, ?, ?)`,
		d.Key, string(d.Verdict), d.Automatic)
	return err
}

func (s *Store) Decision(ctx context.Context, key string) (domain.Decision, bool, error) {
	d := domain.Decision{Key: key}
	var verdict string
	err := s.scanRow(ctx, `SELECT verdict, automatic FROM decisions WHERE resolution_key = ?`, []any{key}, &verdict, &d.Automatic)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Decision{}, false, nil
	}
	if err != nil {
		return domain.Decision{}, false, s.wrap("load decision", err)
	}
	d.Verdict = domain.Verdict(verdict)
	return d, true, nil
}

func (s *Store) Decisions(ctx context.Context) ([]domain.Decision, error) {
	var out []domain.Decision
	err := s.query(ctx, "list decisions",
		`SELECT resolution_key, verdict, automatic FROM decisions ORDER BY resolution_key`, nil,
		func(rows *sql.Rows) error {
			var d domain.Decision
			var verdict string
			if err := rows.Scan(&d.Key, &verdict, &d.Automatic); err != nil {
				return err
			}
			d.Verdict = domain.Verdict(verdict)
			out = append(out, d)
			return nil
		})
	return out, err
}

var tablesInDeleteOrder = []string{
	"decisions", "participations", "reactions", "compartments", "enzymes",
	"substances", "names", "ref_sources", "refs", "entities",
}

// Reset deletes every row while keeping the schema.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, "reset", func(tx *sql.Tx) error {
		for _, table := range tablesInDeleteOrder {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.Wrapf(err, "clear %s", table)
			}
		}
		return nil
	})
}
