package store

import (
	"context"
	"database/sql"
	"fmt"

	"inventory-service/internal/models"

	"github.com/lib/pq"
)

// InsufficientStockError is returned when a claim finds fewer available
// units than requested. The claim transaction is rolled back, so no unit
// changes state.
type InsufficientStockError struct {
	SKUID     int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %d: requested=%d, available=%d",
		e.SKUID, e.Requested, e.Available)
}

// ErrNotHeld is returned when finalization targets a unit that is not
// currently on hold (already sold, already available, or unknown).
var ErrNotHeld = fmt.Errorf("serial unit is not held")

// NoUnitsAddedError is returned when every number passed to AddUnits was
// already present in the store.
type NoUnitsAddedError struct {
	Rejected models.RejectedNumbers
}

func (e *NoUnitsAddedError) Error() string {
	return fmt.Sprintf("no serial units added: already_sold=%v, already_available=%v",
		e.Rejected.AlreadySold, e.Rejected.AlreadyAvailable)
}

// AddUnits inserts new serial records with status available. Numbers already
// present in the store for any status are filtered out and reported back as
// rejected, so partial additions succeed. If nothing is left to add the call
// fails with NoUnitsAddedError naming the conflicting sets.
func (s *Store) AddUnits(ctx context.Context, skuID int64, numbers []string) (*models.AddUnitsResult, error) {
	if len(numbers) == 0 {
		return &models.AddUnitsResult{}, nil
	}

	var existing []struct {
		Number string `db:"number"`
		Status string `db:"status"`
	}
	err := s.db.SelectContext(ctx, &existing,
		"SELECT number, status FROM serial_units WHERE number = ANY($1)", pq.Array(numbers))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing serial numbers: %w", err)
	}

	taken := make(map[string]string, len(existing))
	result := &models.AddUnitsResult{}
	for _, e := range existing {
		taken[e.Number] = e.Status
		if e.Status == models.UnitStatusSold {
			result.Rejected.AlreadySold = append(result.Rejected.AlreadySold, e.Number)
		} else {
			result.Rejected.AlreadyAvailable = append(result.Rejected.AlreadyAvailable, e.Number)
		}
	}

	toAdd := make([]string, 0, len(numbers))
	seen := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		if _, exists := taken[n]; exists || seen[n] {
			continue
		}
		seen[n] = true
		toAdd = append(toAdd, n)
	}

	if len(toAdd) == 0 {
		return nil, &NoUnitsAddedError{Rejected: result.Rejected}
	}

	// A concurrent AddUnits can insert one of these numbers between the
	// check above and the insert; the conflict clause turns that into a
	// rejection instead of failing the whole call.
	var added []string
	err = s.db.SelectContext(ctx, &added, `
		INSERT INTO serial_units (number, sku_id, status)
		SELECT unnest($1::text[]), $2, $3
		ON CONFLICT (number) DO NOTHING
		RETURNING number`,
		pq.Array(toAdd), skuID, models.UnitStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to insert serial units: %w", err)
	}

	if len(added) < len(toAdd) {
		inserted := make(map[string]bool, len(added))
		for _, n := range added {
			inserted[n] = true
		}
		for _, n := range toAdd {
			if !inserted[n] {
				result.Rejected.AlreadyAvailable = append(result.Rejected.AlreadyAvailable, n)
			}
		}
	}

	result.Added = added
	if len(added) == 0 {
		return nil, &NoUnitsAddedError{Rejected: result.Rejected}
	}
	return result, nil
}

// ClaimUnits atomically moves up to count available units of the SKU to
// hold and returns their serial numbers. The claim is all-or-nothing: on a
// shortfall the transaction aborts and InsufficientStockError reports how
// many units were available. SKIP LOCKED keeps concurrent claims from
// blocking on each other's candidate rows.
func (s *Store) ClaimUnits(ctx context.Context, skuID int64, count int) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var numbers []string
	err = tx.SelectContext(ctx, &numbers, `
		SELECT number FROM serial_units
		WHERE sku_id = $1 AND status = $2
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		skuID, models.UnitStatusAvailable, count)
	if err != nil {
		return nil, fmt.Errorf("failed to select available units: %w", err)
	}

	if len(numbers) < count {
		return nil, &InsufficientStockError{SKUID: skuID, Requested: count, Available: len(numbers)}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE serial_units SET status = $1, updated_at = NOW() WHERE number = ANY($2)",
		models.UnitStatusHold, pq.Array(numbers))
	if err != nil {
		return nil, fmt.Errorf("failed to hold units: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return numbers, nil
}

// FinalizeUnit flips a unit from hold to sold. The status filter on the
// update is the compare-and-swap: zero rows affected means the unit was not
// on hold and the call fails with ErrNotHeld, leaving the record untouched.
func (s *Store) FinalizeUnit(ctx context.Context, number string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE serial_units SET status = $1, updated_at = NOW() WHERE number = $2 AND status = $3",
		models.UnitStatusSold, number, models.UnitStatusHold)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("cannot finalize %s: %w", number, ErrNotHeld)
	}
	return nil
}

// ReleaseUnit flips a unit from hold back to available. A unit that is
// already available, already sold, or unknown is left untouched and the
// call succeeds, so release is idempotent and safe to race against a
// concurrent finalize. The return value reports whether a hold was
// actually released.
func (s *Store) ReleaseUnit(ctx context.Context, number string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE serial_units SET status = $1, updated_at = NOW() WHERE number = $2 AND status = $3",
		models.UnitStatusAvailable, number, models.UnitStatusHold)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetUnit retrieves a serial unit by number; nil when unknown.
func (s *Store) GetUnit(ctx context.Context, number string) (*models.SerialUnit, error) {
	var unit models.SerialUnit
	err := s.db.GetContext(ctx, &unit, "SELECT * FROM serial_units WHERE number = $1", number)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// CountUnitsByStatus counts units of a SKU in the given status.
func (s *Store) CountUnitsByStatus(ctx context.Context, skuID int64, status string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM serial_units WHERE sku_id = $1 AND status = $2", skuID, status)
	return n, err
}
