// Package gorm persists delivery calendars and their outbox entries through
// a gorm database handle. It is interchangeable with the pgxv5 store; both
// keep the aggregate writes and the outbox appends in one transaction.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"delivery-calendar/calendar"
	"delivery-calendar/logger"
	"delivery-calendar/outbox"
)

const (
	getCalendarSql          = "SELECT id, patient_id, plan_id, start_date, end_date, active, created_at FROM delivery_calendar WHERE id=?"
	getCalendarByPatientSql = "SELECT id, patient_id, plan_id, start_date, end_date, active, created_at FROM delivery_calendar WHERE patient_id=? AND active LIMIT 1"
	listActiveCalendarsSql  = "SELECT id, patient_id, plan_id, start_date, end_date, active, created_at FROM delivery_calendar WHERE active ORDER BY created_at ASC"
	getAddressesSql         = "SELECT id, calendar_id, delivery_date, address, notes, latitude, longitude, active, created_at, last_modified FROM delivery_address WHERE calendar_id=? ORDER BY position ASC"
	upsertCalendarSql       = "INSERT INTO delivery_calendar (id, patient_id, plan_id, start_date, end_date, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO UPDATE SET active=EXCLUDED.active"
	upsertAddressSql        = "INSERT INTO delivery_address (id, calendar_id, delivery_date, address, notes, latitude, longitude, active, created_at, last_modified, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO UPDATE SET address=EXCLUDED.address, notes=EXCLUDED.notes, latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, active=EXCLUDED.active, last_modified=EXCLUDED.last_modified"
	insertOutboxSql         = "INSERT INTO outbox (id, event_kind, payload, occurred_at) VALUES (?, ?, ?, ?)"
	getPendingOutboxSql     = "SELECT id, event_kind, payload, occurred_at, processed_at FROM outbox WHERE processed_at IS NULL ORDER BY occurred_at ASC LIMIT ?"
	getOutboxLockRowSql     = "SELECT id, locked, locked_by, locked_at, locked_until, version FROM outbox_lock WHERE id=1"
	acquireLockSql          = "UPDATE outbox_lock SET locked=true, locked_by=?, locked_at=?, locked_until=?, version=? WHERE id=1 AND version=?"
	releaseLockSql          = "UPDATE outbox_lock SET locked=false, locked_by=null, locked_at=null, locked_until=null WHERE id=1"
)

// Repository implements the calendar persistence boundary, the outbox store
// and the unit of work over a gorm handle. Transactions travel in the
// context under txKey.
type Repository struct {
	txKey  calendar.TxKey
	db     *gorm.DB
	logger logger.Logger
}

var _ calendar.Repository = (*Repository)(nil)
var _ calendar.UnitOfWork = (*Repository)(nil)
var _ outbox.Store = (*Repository)(nil)
var _ logger.Loggable = (*Repository)(nil)

func New(txKey calendar.TxKey, db *gorm.DB) *Repository {
	if txKey == nil {
		panic("txKey is mandatory")
	}
	if db == nil {
		panic("db is mandatory")
	}
	return &Repository{
		txKey:  txKey,
		db:     db,
		logger: &logger.NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (r *Repository) SetLogger(l logger.Logger) {
	r.logger = l
}

// Begin opens a transaction and returns a context carrying it.
func (r *Repository) Begin(ctx context.Context) (context.Context, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return ctx, fmt.Errorf("beginning transaction: %w", tx.Error)
	}
	return context.WithValue(ctx, r.txKey, tx), nil
}

// Commit commits the transaction present in the context.
func (r *Repository) Commit(ctx context.Context) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	return tx.Commit().Error
}

// Rollback rolls back the transaction present in the context.
func (r *Repository) Rollback(ctx context.Context) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	return tx.Rollback().Error
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
	rows, err := r.db.WithContext(ctx).Raw(listActiveCalendarsSql).Rows()
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
	err = tx.Exec(upsertCalendarSql,
		c.ID(), c.PatientID(), c.PlanID(), c.StartDate().Time(), c.EndDate().Time(), c.Active(), c.CreatedAt()).Error
	if err != nil {
		return fmt.Errorf("could not persist the calendar: %w", err)
	}
	for i, a := range c.Addresses() {
		err = tx.Exec(upsertAddressSql,
			a.ID(), a.CalendarID(), a.Date().Time(), a.Text(), a.Notes(),
			a.Latitude().Float64(), a.Longitude().Float64(), a.Active(), a.CreatedAt(), a.LastModified(), i).Error
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
		err := tx.Exec(insertOutboxSql, e.ID, string(e.Kind), e.Payload, e.OccurredAt).Error
		if err != nil {
			return fmt.Errorf("could not persist the outbox entry: %w", err)
		}
	}
	return nil
}

// FindPending retrieves up to limit pending outbox entries, oldest first.
func (r *Repository) FindPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	rows, err := r.db.WithContext(ctx).Raw(getPendingOutboxSql, limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("scanning pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		var er outboxRow
		if err := er.scan(rows); err != nil {
			return nil, err
		}
		entries = append(entries, er.entry())
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
	placeholders := make([]string, len(ids))
	values := make([]interface{}, 0, len(ids)+1)
	values = append(values, at)
	for i, id := range ids {
		placeholders[i] = "?"
		values = append(values, id)
	}
	query := "UPDATE outbox SET processed_at=? WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	err := r.db.WithContext(ctx).Exec(query, values...).Error
	if err != nil {
		return fmt.Errorf("stamping processed outbox entries: %w", err)
	}
	return nil
}

// AcquireLock claims the outbox for a relay instance using optimistic
// locking through the auxiliary 'outbox_lock' table.
func (r *Repository) AcquireLock(relayID uuid.UUID) (bool, error) {
	lock, err := r.getOutboxLockRow()
	if err != nil {
		return false, err
	}
	if lock.Locked && lock.LockedUntil.Time.After(time.Now()) {
		return false, nil
	}
	lockedAt := time.Now()
	lockedUntil := lockedAt.Add(outbox.LockMaxDuration)
	res := r.db.Exec(acquireLockSql, relayID, lockedAt, lockedUntil, lock.Version+1, lock.Version)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, errors.New("race condition detected during the optimistic locking")
	}
	r.logger.Debug(fmt.Sprintf("the outbox lock was acquired by %s", relayID.String()))
	return true, nil
}

// ReleaseLock releases the claim on the outbox that was acquired by the
// specified relay instance.
func (r *Repository) ReleaseLock(relayID uuid.UUID) error {
	lock, err := r.getOutboxLockRow()
	if err != nil {
		return err
	}
	if !lock.Locked || lock.LockedBy.String() != relayID.String() {
		return fmt.Errorf("unexpected lock status: %s. The lock should be held by %s", lock, relayID)
	}
	err = r.db.Exec(releaseLockSql).Error
	if err != nil {
		return err
	}
	r.logger.Debug(fmt.Sprintf("the outbox lock was released by %s", relayID.String()))
	return nil
}

func (r *Repository) tx(ctx context.Context) (*gorm.DB, error) {
	tx, ok := ctx.Value(r.txKey).(*gorm.DB)
	if !ok {
		return nil, errors.New("a *gorm.DB transaction was expected")
	}
	return tx, nil
}

// getOutboxLockRow returns the only 'outbox_lock' table row.
func (r *Repository) getOutboxLockRow() (*outboxLock, error) {
	var lock outboxLock
	result := r.db.Raw(getOutboxLockRowSql).Scan(&lock)
	if result.Error != nil {
		return nil, result.Error
	}
	return &lock, nil
}

func (r *Repository) loadOne(ctx context.Context, query string, arg any) (*calendar.Calendar, error) {
	rows, err := r.db.WithContext(ctx).Raw(query, arg).Rows()
	if err != nil {
		return nil, fmt.Errorf("loading calendar: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, calendar.ErrCalendarNotFound
	}
	var cr calendarRow
	if err := cr.scan(rows); err != nil {
		return nil, err
	}
	rows.Close()

	addresses, err := r.loadAddresses(ctx, cr.id)
	if err != nil {
		return nil, err
	}
	return cr.rehydrate(addresses), nil
}

func (r *Repository) loadAddresses(ctx context.Context, calendarID uuid.UUID) ([]*calendar.Address, error) {
	rows, err := r.db.WithContext(ctx).Raw(getAddressesSql, calendarID).Rows()
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
