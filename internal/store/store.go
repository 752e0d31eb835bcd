package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"material-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetLotByID retrieves a lot scoped to the caller's org.
// Cross-org lookups are indistinguishable from not-found.
func (s *Store) GetLotByID(ctx context.Context, orgID, lotID string) (*models.Lot, error) {
	var lot models.Lot
	err := s.db.GetContext(ctx, &lot,
		"SELECT * FROM lots WHERE id = $1 AND org_id = $2", lotID, orgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeLotNotFound, "lot not found: %s", lotID)
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// GetCandidateLots returns lots of a product eligible for reservation, with
// available quantity derived as current quantity minus active earmarks.
// Ordering is left to the allocator so the picking policy stays in one place.
func (s *Store) GetCandidateLots(ctx context.Context, orgID, warehouseID, productID string) ([]models.Lot, error) {
	query := `
		SELECT l.*,
		       l.current_qty - COALESCE(r.earmarked, 0) AS available_qty
		FROM lots l
		LEFT JOIN (
			SELECT lot_id, SUM(qty) AS earmarked
			FROM lot_reservations
			WHERE status = 'reserved'
			GROUP BY lot_id
		) r ON r.lot_id = l.id
		WHERE l.org_id = $1
		  AND l.warehouse_id = $2
		  AND l.product_id = $3
		  AND l.status IN ('available', 'reserved')
		  AND l.current_qty > 0`

	var lots []models.Lot
	err := s.db.SelectContext(ctx, &lots, query, orgID, warehouseID, productID)
	return lots, err
}

// GetWarehouseSettings retrieves picking policy settings for an org.
// Missing settings default to FIFO-only.
func (s *Store) GetWarehouseSettings(ctx context.Context, orgID string) (*models.WarehouseSettings, error) {
	var ws models.WarehouseSettings
	err := s.db.GetContext(ctx, &ws,
		"SELECT * FROM warehouse_settings WHERE org_id = $1", orgID)
	if err == sql.ErrNoRows {
		return &models.WarehouseSettings{OrgID: orgID, EnableFIFO: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetProductionSettings retrieves consumption policy settings for an org.
// Missing settings default to gated over-consumption.
func (s *Store) GetProductionSettings(ctx context.Context, orgID string) (*models.ProductionSettings, error) {
	var ps models.ProductionSettings
	err := s.db.GetContext(ctx, &ps,
		"SELECT * FROM production_settings WHERE org_id = $1", orgID)
	if err == sql.ErrNoRows {
		return &models.ProductionSettings{OrgID: orgID, AllowOverConsumption: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// CreateAuditLog appends an audit trail entry
func (s *Store) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, org_id, user_id, action, entity_type, entity_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.OrgID, entry.UserID, entry.Action,
		entry.EntityType, entry.EntityID, entry.Description)
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
