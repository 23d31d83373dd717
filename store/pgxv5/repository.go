// Package pgxv5 persists delivery calendars and their outbox entries in
// PostgreSQL through a pgx connection pool. The aggregate row writes and the
// outbox appends share the transaction carried by the context, which is the
// core correctness property of the outbox design.
package pgxv5

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"delivery-calendar/calendar"
	"delivery-calendar/logger"
	"delivery-calendar/outbox"
)

const (
	getCalendarSql          = "SELECT id, patient_id, plan_id, start_date, end_date, active, created_at FROM delivery_calendar WHERE id=$1"
	getCalendarByPatientSql = "SELECT id, patient_id, plan_id, start_date, end_date, active, created_at FROM delivery_calendar WHERE patient_id=$1 AND active LIMIT 1"
	listActiveCalendarsSql  = "SELECT id, patient_id, plan_id, start_date, end_date, active, created_at FROM delivery_calendar WHERE active ORDER BY created_at ASC"
	getAddressesSql         = "SELECT id, calendar_id, delivery_date, address, notes, latitude, longitude, active, created_at, last_modified FROM delivery_address WHERE calendar_id=$1 ORDER BY position ASC"
	upsertCalendarSql       = "INSERT INTO delivery_calendar (id, patient_id, plan_id, start_date, end_date, active, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO UPDATE SET active=EXCLUDED.active"
	upsertAddressSql        = "INSERT INTO delivery_address (id, calendar_id, delivery_date, address, notes, latitude, longitude, active, created_at, last_modified, position) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (id) DO UPDATE SET address=EXCLUDED.address, notes=EXCLUDED.notes, latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, active=EXCLUDED.active, last_modified=EXCLUDED.last_modified"
	insertOutboxSql         = "INSERT INTO outbox (id, event_kind, payload, occurred_at) VALUES ($1, $2, $3, $4)"
	getPendingOutboxSql     = "SELECT id, event_kind, payload, occurred_at, processed_at FROM outbox WHERE processed_at IS NULL ORDER BY occurred_at ASC LIMIT $1"
	markProcessedSql        = "UPDATE outbox SET processed_at=$1 WHERE id = ANY($2)"
	getOutboxLockRowSql     = "SELECT id, locked, locked_by, locked_at, locked_until, version FROM outbox_lock WHERE id=1"
	acquireLockSql          = "UPDATE outbox_lock SET locked=true, locked_by=$1, locked_at=$2, locked_until=$3, version=$4 WHERE id=1 AND version=$5"
	releaseLockSql          = "UPDATE outbox_lock SET locked=false, locked_by=null, locked_at=null, locked_until=null WHERE id=1"
)

// dbpool is a helper interface to work with pgxpool.Pool.
type dbpool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository implements the calendar persistence boundary, the outbox store
// and the unit of work over a single pgx pool. Transactions travel in the
// context under txKey.
type Repository struct {
	txKey  calendar.TxKey
	db     dbpool
	logger logger.Logger
}

var _ calendar.Repository = (*Repository)(nil)
var _ calendar.UnitOfWork = (*Repository)(nil)
var _ outbox.Store = (*Repository)(nil)
var _ logger.Loggable = (*Repository)(nil)

func New(txKey calendar.TxKey, pool dbpool) *Repository {
	if txKey == nil {
		panic("txKey is mandatory")
	}
	if pool == nil || reflect.ValueOf(pool).IsNil() {
		panic("pool is mandatory")
	}
	return &Repository{
		txKey:  txKey,
		db:     pool,
		logger: &logger.NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (r *Repository) SetLogger(l logger.Logger) {
	r.logger = l
}

// Begin opens a transaction and returns a context carrying it.
func (r *Repository) Begin(ctx context.Context) (context.Context, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("beginning transaction: %w", err)
	}
	return context.WithValue(ctx, r.txKey, tx), nil
}

// Commit commits the transaction present in the context.
func (r *Repository) Commit(ctx context.Context) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Rollback rolls back the transaction present in the context.
func (r *Repository) Rollback(ctx context.Context) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	return tx.Rollback(ctx)
}

// Load returns the calendar with the given id and its addresses.
func (r *Repository) Load(ctx context.Context, id uuid.UUID) (*calendar.Calendar, error) {
	return r.loadOne(ctx, getCalendarSql, id)
}

// LoadByPatient returns the patient's active calendar.
func (r *Repository) LoadByPatient(ctx context.Context, patientID uuid.UUID) (*calendar.Calendar, error) {
	return r.loadOne(ctx, getCalendarByPatientSql, patientID)
}

// ListActive returns every active calendar with its addresses.
func (r *Repository) ListActive(ctx context.Context) ([]*calendar.Calendar, error) {
	rows, err := r.db.Query(ctx, listActiveCalendarsSql)
	if err != nil {
		return nil, fmt.Errorf("listing active calendars: %w", err)
	}
	defer rows.Close()

	var crs []calendarRow
	for rows.Next() {
		var cr calendarRow
		if err := cr.scan(rows); err != nil {
			return nil, err
		}
		crs = append(crs, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cals := make([]*calendar.Calendar, 0, len(crs))
	for _, cr := range crs {
		addresses, err := r.loadAddresses(ctx, cr.id)
		if err != nil {
			return nil, err
		}
		cals = append(cals, cr.rehydrate(addresses))
	}
	return cals, nil
}

// Save persists the aggregate state and captures its raised events into the
// outbox within the transaction present in the context.
func (r *Repository) Save(ctx context.Context, c *calendar.Calendar) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, upsertCalendarSql,
		c.ID(), c.PatientID(), c.PlanID(), c.StartDate().Time(), c.EndDate().Time(), c.Active(), c.CreatedAt())
	if err != nil {
		return fmt.Errorf("could not persist the calendar: %w", err)
	}
	for i, a := range c.Addresses() {
		_, err = tx.Exec(ctx, upsertAddressSql,
			a.ID(), a.CalendarID(), a.Date().Time(), a.Text(), a.Notes(),
			a.Latitude().Float64(), a.Longitude().Float64(), a.Active(), a.CreatedAt(), a.LastModified(), i)
		if err != nil {
			return fmt.Errorf("could not persist the address for %s: %w", a.Date(), err)
		}
	}

	entries, err := outbox.Capture(c, time.Now().UTC())
	if err != nil {
		return err
	}
	return r.Append(ctx, entries)
}

// Append persists outbox entries within the transaction present in the
// context.
func (r *Repository) Append(ctx context.Context, entries []*outbox.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_, err := tx.Exec(ctx, insertOutboxSql, e.ID, string(e.Kind), e.Payload, e.OccurredAt)
		if err != nil {
			return fmt.Errorf("could not persist the outbox entry: %w", err)
		}
	}
	return nil
}

// FindPending retrieves up to limit pending outbox entries, oldest first.
func (r *Repository) FindPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	rows, err := r.db.Query(ctx, getPendingOutboxSql, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		var e outbox.Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Payload, &e.OccurredAt, &e.ProcessedAt); err != nil {
			return nil, err
		}
		e.Kind = calendar.EventKind(kind)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkProcessed stamps the processed timestamp on the given entries in one
// write.
func (r *Repository) MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, markProcessedSql, at, ids)
	if err != nil {
		return fmt.Errorf("stamping processed outbox entries: %w", err)
	}
	return nil
}

// AcquireLock claims the outbox for a relay instance using optimistic
// locking through the auxiliary 'outbox_lock' table.
func (r *Repository) AcquireLock(relayID uuid.UUID) (bool, error) {
	ctx := context.Background()
	lock, err := r.getOutboxLockRow()
	if err != nil {
		return false, err
	}
	if lock.locked && lock.lockedUntil.Time.After(time.Now()) {
		return false, nil
	}
	lockedAt := time.Now()
	lockedUntil := lockedAt.Add(outbox.LockMaxDuration)
	ct, err := r.db.Exec(ctx, acquireLockSql, relayID, lockedAt, lockedUntil, lock.version+1, lock.version)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, errors.New("race condition detected during the optimistic locking")
	}
	r.logger.Debug(fmt.Sprintf("the outbox lock was acquired by %s", relayID.String()))
	return true, nil
}

// ReleaseLock releases the claim on the outbox that was acquired by the
// specified relay instance.
func (r *Repository) ReleaseLock(relayID uuid.UUID) error {
	ctx := context.Background()
	lock, err := r.getOutboxLockRow()
	if err != nil {
		return err
	}
	if !lock.locked || uuid.UUID(lock.lockedBy.Bytes).String() != relayID.String() {
		return fmt.Errorf("unexpected lock status: %s. The lock should be held by %s", lock, relayID)
	}
	_, err = r.db.Exec(ctx, releaseLockSql)
	if err != nil {
		return err
	}
	r.logger.Debug(fmt.Sprintf("the outbox lock was released by %s", relayID.String()))
	return nil
}

// getOutboxLockRow returns the only 'outbox_lock' table row.
func (r *Repository) getOutboxLockRow() (*outboxLock, error) {
	ctx := context.Background()
	row := r.db.QueryRow(ctx, getOutboxLockRowSql)
	var lock outboxLock
	err := row.Scan(&lock.id, &lock.locked, &lock.lockedBy, &lock.lockedAt, &lock.lockedUntil, &lock.version)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *Repository) tx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(r.txKey).(pgx.Tx)
	if !ok {
		return nil, errors.New("a pgx.Tx transaction was expected")
	}
	return tx, nil
}

func (r *Repository) loadOne(ctx context.Context, query string, arg any) (*calendar.Calendar, error) {
	row := r.db.QueryRow(ctx, query, arg)
	var cr calendarRow
	if err := cr.scan(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, calendar.ErrCalendarNotFound
		}
		return nil, fmt.Errorf("loading calendar: %w", err)
	}
	addresses, err := r.loadAddresses(ctx, cr.id)
	if err != nil {
		return nil, err
	}
	return cr.rehydrate(addresses), nil
}

func (r *Repository) loadAddresses(ctx context.Context, calendarID uuid.UUID) ([]*calendar.Address, error) {
	rows, err := r.db.Query(ctx, getAddressesSql, calendarID)
	if err != nil {
		return nil, fmt.Errorf("loading addresses: %w", err)
	}
	defer rows.Close()

	var addresses []*calendar.Address
	for rows.Next() {
		var ar addressRow
		if err := ar.scan(rows); err != nil {
			return nil, err
		}
		addresses = append(addresses, ar.rehydrate())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}
