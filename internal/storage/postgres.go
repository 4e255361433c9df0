package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/estimator/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- Opportunities ---

const opportunityColumns = `id, title, operators, column_id, position, promotion, created_by, created_at, last_updated`

// CreateOpportunity inserts an opportunity at the end of its column
func (r *PostgresRepository) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	operatorsJSON, err := marshalList(o.Operators)
	if err != nil {
		return fmt.Errorf("failed to marshal operators: %w", err)
	}
	promotionJSON, err := marshalNullable(o.Promotion)
	if err != nil {
		return fmt.Errorf("failed to marshal promotion: %w", err)
	}

	query := `
		INSERT INTO opportunities (id, title, operators, column_id, position, promotion, created_by, created_at, last_updated)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM opportunities WHERE column_id = $4),
			$5, $6, $7, $7)
		RETURNING position
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockColumns(ctx, tx, "opportunities", string(o.Column)); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, query,
		o.ID,
		o.Title,
		operatorsJSON,
		string(o.Column),
		promotionJSON,
		nullString(o.CreatedBy),
		o.CreatedAt,
	).Scan(&o.Position)
	if err != nil {
		return fmt.Errorf("failed to create opportunity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit opportunity: %w", err)
	}

	o.LastUpdated = o.CreatedAt
	return nil
}

// GetOpportunity retrieves an opportunity with its options
func (r *PostgresRepository) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE id = $1`

	o, err := scanOpportunity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}

	if err := r.attachOptions(ctx, []*models.Opportunity{o}); err != nil {
		return nil, err
	}

	return o, nil
}

// UpdateOpportunity updates title, operators and promotion
func (r *PostgresRepository) UpdateOpportunity(ctx context.Context, o *models.Opportunity) error {
	operatorsJSON, err := marshalList(o.Operators)
	if err != nil {
		return fmt.Errorf("failed to marshal operators: %w", err)
	}
	promotionJSON, err := marshalNullable(o.Promotion)
	if err != nil {
		return fmt.Errorf("failed to marshal promotion: %w", err)
	}

	query := `
		UPDATE opportunities
		SET title = $2, operators = $3, promotion = $4, last_updated = NOW()
		WHERE id = $1
		RETURNING last_updated
	`

	err = r.pool.QueryRow(ctx, query, o.ID, o.Title, operatorsJSON, promotionJSON).Scan(&o.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("opportunity %s: %w", o.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to update opportunity: %w", err)
	}

	return nil
}

// DeleteOpportunity deletes an opportunity and closes the gap it leaves in its column
func (r *PostgresRepository) DeleteOpportunity(ctx context.Context, id string) error {
	return r.deleteCard(ctx, "opportunities", id)
}

// ListOpportunities returns opportunities matching filters, ordered by column and position
func (r *PostgresRepository) ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.Column != "" {
		query += fmt.Sprintf(" AND column_id = $%d", argNum)
		args = append(args, string(filters.Column))
		argNum++
	}

	query += " ORDER BY column_id, position, created_at"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	var opportunities []*models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opportunities = append(opportunities, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}

	if err := r.attachOptions(ctx, opportunities); err != nil {
		return nil, err
	}

	return opportunities, nil
}

// MoveOpportunity moves an opportunity to column at position and returns the stored position
func (r *PostgresRepository) MoveOpportunity(ctx context.Context, id string, column models.ColumnID, position int) (int, error) {
	return r.moveCard(ctx, "opportunities", "last_updated", id, column, position)
}

func scanOpportunity(row rowScanner) (*models.Opportunity, error) {
	var o models.Opportunity
	var column string
	var createdBy sql.NullString
	var operatorsJSON, promotionJSON []byte

	err := row.Scan(
		&o.ID,
		&o.Title,
		&operatorsJSON,
		&column,
		&o.Position,
		&promotionJSON,
		&createdBy,
		&o.CreatedAt,
		&o.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	o.Column = models.ColumnID(column)
	o.CreatedBy = createdBy.String
	o.Options = []*models.Option{}
	o.Operators = []models.Operator{}

	if operatorsJSON != nil {
		if err := json.Unmarshal(operatorsJSON, &o.Operators); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operators: %w", err)
		}
	}
	if promotionJSON != nil {
		if err := json.Unmarshal(promotionJSON, &o.Promotion); err != nil {
			return nil, fmt.Errorf("failed to unmarshal promotion: %w", err)
		}
	}

	return &o, nil
}

// --- Options ---

const optionColumns = `id, opportunity_id, content, title, description, price, is_complete, is_approved,
	materials, sections, financing, promotion, calculated_price_details, position, created_at, updated_at`

// CreateOption appends an option to its opportunity
func (r *PostgresRepository) CreateOption(ctx context.Context, opt *models.Option) error {
	params, err := optionParams(opt)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := touchOpportunity(ctx, tx, opt.OpportunityID); err != nil {
		return err
	}

	query := `
		INSERT INTO options (id, opportunity_id, content, title, description, price, is_complete, is_approved,
			materials, sections, financing, promotion, calculated_price_details, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM options WHERE opportunity_id = $2),
			$14, $14)
		RETURNING position
	`

	args := append([]interface{}{opt.ID, opt.OpportunityID}, params...)
	args = append(args, opt.CreatedAt)

	if err := tx.QueryRow(ctx, query, args...).Scan(&opt.Position); err != nil {
		return fmt.Errorf("failed to create option: %w", err)
	}

	opt.UpdatedAt = opt.CreatedAt

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit option: %w", err)
	}
	return nil
}

// UpdateOption replaces the editable fields of an option
func (r *PostgresRepository) UpdateOption(ctx context.Context, opt *models.Option) error {
	params, err := optionParams(opt)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE options
		SET content = $3, title = $4, description = $5, price = $6, is_complete = $7, is_approved = $8,
			materials = $9, sections = $10, financing = $11, promotion = $12, calculated_price_details = $13,
			updated_at = NOW()
		WHERE id = $1 AND opportunity_id = $2
		RETURNING position, created_at, updated_at
	`

	args := append([]interface{}{opt.ID, opt.OpportunityID}, params...)

	err = tx.QueryRow(ctx, query, args...).Scan(&opt.Position, &opt.CreatedAt, &opt.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("option %s: %w", opt.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to update option: %w", err)
	}

	if err := touchOpportunity(ctx, tx, opt.OpportunityID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit option: %w", err)
	}
	return nil
}

// DeleteOption removes an option and compacts the remaining positions
func (r *PostgresRepository) DeleteOption(ctx context.Context, opportunityID, optionID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var position int
	err = tx.QueryRow(ctx,
		`DELETE FROM options WHERE id = $1 AND opportunity_id = $2 RETURNING position`,
		optionID, opportunityID,
	).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("option %s: %w", optionID, ErrNotFound)
		}
		return fmt.Errorf("failed to delete option: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE options SET position = position - 1 WHERE opportunity_id = $1 AND position > $2`,
		opportunityID, position,
	)
	if err != nil {
		return fmt.Errorf("failed to compact options: %w", err)
	}

	if err := touchOpportunity(ctx, tx, opportunityID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit option delete: %w", err)
	}
	return nil
}

// attachOptions loads the options of all given opportunities in one query
func (r *PostgresRepository) attachOptions(ctx context.Context, opportunities []*models.Opportunity) error {
	if len(opportunities) == 0 {
		return nil
	}

	byID := make(map[string]*models.Opportunity, len(opportunities))
	ids := make([]string, 0, len(opportunities))
	for _, o := range opportunities {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `SELECT ` + optionColumns + ` FROM options WHERE opportunity_id = ANY($1) ORDER BY opportunity_id, position`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to get options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		opt, err := scanOption(rows)
		if err != nil {
			return fmt.Errorf("failed to scan option: %w", err)
		}
		if o, ok := byID[opt.OpportunityID]; ok {
			o.Options = append(o.Options, opt)
		}
	}

	return rows.Err()
}

func scanOption(row rowScanner) (*models.Option, error) {
	var opt models.Option
	var content, description sql.NullString
	var materialsJSON, sectionsJSON, financingJSON, promotionJSON, detailsJSON []byte

	err := row.Scan(
		&opt.ID,
		&opt.OpportunityID,
		&content,
		&opt.Title,
		&description,
		&opt.Price,
		&opt.IsComplete,
		&opt.IsApproved,
		&materialsJSON,
		&sectionsJSON,
		&financingJSON,
		&promotionJSON,
		&detailsJSON,
		&opt.Position,
		&opt.CreatedAt,
		&opt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	opt.Content = content.String
	opt.Description = description.String

	fields := []struct {
		name string
		data []byte
		dst  any
	}{
		{"materials", materialsJSON, &opt.Materials},
		{"sections", sectionsJSON, &opt.Sections},
		{"financing", financingJSON, &opt.Financing},
		{"promotion", promotionJSON, &opt.Promotion},
		{"calculated_price_details", detailsJSON, &opt.CalculatedPriceDetails},
	}
	for _, f := range fields {
		if f.data == nil {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}

	return &opt, nil
}

// optionParams returns the columns content..calculated_price_details in insert order
func optionParams(opt *models.Option) ([]interface{}, error) {
	materialsJSON, err := marshalList(opt.Materials)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal materials: %w", err)
	}
	sectionsJSON, err := marshalList(opt.Sections)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sections: %w", err)
	}
	financingJSON, err := marshalNullable(opt.Financing)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal financing: %w", err)
	}
	promotionJSON, err := marshalNullable(opt.Promotion)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal promotion: %w", err)
	}
	detailsJSON, err := marshalNullable(opt.CalculatedPriceDetails)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal price details: %w", err)
	}

	return []interface{}{
		nullString(opt.Content),
		opt.Title,
		nullString(opt.Description),
		opt.Price,
		opt.IsComplete,
		opt.IsApproved,
		materialsJSON,
		sectionsJSON,
		financingJSON,
		promotionJSON,
		detailsJSON,
	}, nil
}

func touchOpportunity(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `UPDATE opportunities SET last_updated = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Projects ---

const projectColumns = `id, status, type, title, subtitle, date, image_url, column_id, position, created_at, updated_at`

// CreateProject inserts a project card at the end of its column
func (r *PostgresRepository) CreateProject(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (id, status, type, title, subtitle, date, image_url, column_id, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM projects WHERE column_id = $8),
			$9, $9)
		RETURNING position
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockColumns(ctx, tx, "projects", string(p.Column)); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, query,
		p.ID,
		string(p.Status),
		p.Type,
		p.Title,
		nullString(p.Subtitle),
		nullTime(p.Date),
		nullString(p.ImageURL),
		string(p.Column),
		p.CreatedAt,
	).Scan(&p.Position)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}

	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetProject retrieves a project by ID
func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	p, err := scanProject(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return p, nil
}

// ListProjects returns projects, optionally restricted to one column
func (r *PostgresRepository) ListProjects(ctx context.Context, column models.ColumnID) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	args := make([]interface{}, 0)

	if column != "" {
		query += ` WHERE column_id = $1`
		args = append(args, string(column))
	}
	query += ` ORDER BY column_id, position, created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// MoveProject moves a project card to column at position
func (r *PostgresRepository) MoveProject(ctx context.Context, id string, column models.ColumnID, position int) (int, error) {
	return r.moveCard(ctx, "projects", "updated_at", id, column, position)
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var status, column string
	var subtitle, imageURL sql.NullString
	var date sql.NullTime

	err := row.Scan(
		&p.ID,
		&status,
		&p.Type,
		&p.Title,
		&subtitle,
		&date,
		&imageURL,
		&column,
		&p.Position,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = models.ProjectStatus(status)
	p.Column = models.ColumnID(column)
	p.Subtitle = subtitle.String
	p.ImageURL = imageURL.String
	if date.Valid {
		p.Date = &date.Time
	}

	return &p, nil
}

// --- Card positioning ---

// maxCardAttempts bounds retries when a card changes column between
// reading it and locking its column
const maxCardAttempts = 3

var errColumnChanged = errors.New("card changed column")

// columnLockKeys returns the advisory lock keys for columns of table,
// sorted and deduplicated so every transaction acquires them in the same order.
func columnLockKeys(table string, columns ...string) []string {
	seen := make(map[string]bool, len(columns))
	keys := make([]string, 0, len(columns))
	for _, c := range columns {
		key := table + ":" + c
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// lockColumns serializes position changes within the given columns until tx ends
func lockColumns(ctx context.Context, tx pgx.Tx, table string, columns ...string) error {
	for _, key := range columnLockKeys(table, columns...) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("failed to lock column %s: %w", key, err)
		}
	}
	return nil
}

// withCard runs fn in a transaction holding the column locks of the card's
// current column and of extra, plus a row lock on the card. table is a
// trusted identifier.
func (r *PostgresRepository) withCard(ctx context.Context, table, id, extra string, fn func(tx pgx.Tx, fromColumn string, fromPosition int) error) error {
	var err error
	for attempt := 0; attempt < maxCardAttempts; attempt++ {
		err = r.tryWithCard(ctx, table, id, extra, fn)
		if !errors.Is(err, errColumnChanged) {
			return err
		}
	}
	return fmt.Errorf("%s %s: %w", table, id, err)
}

func (r *PostgresRepository) tryWithCard(ctx context.Context, table, id, extra string, fn func(tx pgx.Tx, fromColumn string, fromPosition int) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var seen string
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT column_id FROM %s WHERE id = $1`, table), id).Scan(&seen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return fmt.Errorf("failed to read %s row: %w", table, err)
	}

	if err := lockColumns(ctx, tx, table, seen, extra); err != nil {
		return err
	}

	var fromColumn string
	var fromPosition int
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT column_id, position FROM %s WHERE id = $1 FOR UPDATE`, table), id,
	).Scan(&fromColumn, &fromPosition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return fmt.Errorf("failed to lock %s row: %w", table, err)
	}
	if fromColumn != seen {
		return errColumnChanged
	}

	if err := fn(tx, fromColumn, fromPosition); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s change: %w", table, err)
	}
	return nil
}

// moveCard moves a row of table to column/position, shifting siblings so
// positions in both columns stay contiguous. table and touched are trusted
// identifiers.
func (r *PostgresRepository) moveCard(ctx context.Context, table, touched, id string, column models.ColumnID, position int) (int, error) {
	err := r.withCard(ctx, table, id, string(column), func(tx pgx.Tx, fromColumn string, fromPosition int) error {
		_, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET position = position - 1 WHERE column_id = $1 AND position > $2 AND id <> $3`, table),
			fromColumn, fromPosition, id,
		)
		if err != nil {
			return fmt.Errorf("failed to close gap in %s: %w", fromColumn, err)
		}

		var siblings int
		err = tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE column_id = $1 AND id <> $2`, table),
			string(column), id,
		).Scan(&siblings)
		if err != nil {
			return fmt.Errorf("failed to count %s siblings: %w", table, err)
		}

		position = clampPosition(position, siblings)

		_, err = tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET position = position + 1 WHERE column_id = $1 AND position >= $2 AND id <> $3`, table),
			string(column), position, id,
		)
		if err != nil {
			return fmt.Errorf("failed to open gap in %s: %w", column, err)
		}

		_, err = tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET column_id = $2, position = $3, %s = NOW() WHERE id = $1`, table, touched),
			id, string(column), position,
		)
		if err != nil {
			return fmt.Errorf("failed to move %s row: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

func (r *PostgresRepository) deleteCard(ctx context.Context, table, id string) error {
	return r.withCard(ctx, table, id, "", func(tx pgx.Tx, column string, position int) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}

		_, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET position = position - 1 WHERE column_id = $1 AND position > $2`, table),
			column, position,
		)
		if err != nil {
			return fmt.Errorf("failed to compact %s: %w", column, err)
		}
		return nil
	})
}

// clampPosition bounds a requested position to [0, siblings]
func clampPosition(position, siblings int) int {
	if position < 0 {
		return 0
	}
	if position > siblings {
		return siblings
	}
	return position
}

// --- Team members ---

// CreateTeamMember inserts a team member row
func (r *PostgresRepository) CreateTeamMember(ctx context.Context, m *models.TeamMember) error {
	query := `
		INSERT INTO team_members (id, user_id, email, first_name, last_name, phone, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.UserID,
		m.Email,
		m.FirstName,
		m.LastName,
		nullString(m.Phone),
		string(m.Role),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create team member: %w", err)
	}

	return nil
}

// ListTeamMembers returns all team members, oldest first
func (r *PostgresRepository) ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error) {
	query := `
		SELECT id, user_id, email, first_name, last_name, phone, role, created_at
		FROM team_members
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		var role string
		var phone sql.NullString

		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FirstName, &m.LastName, &phone, &role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}

		m.Phone = phone.String
		m.Role = models.Role(role)
		members = append(members, &m)
	}

	return members, rows.Err()
}

// --- Hover tokens ---

// SaveHoverToken upserts a user's Hover tokens. An empty refresh token keeps the stored one.
func (r *PostgresRepository) SaveHoverToken(ctx context.Context, t *models.HoverToken) error {
	query := `
		INSERT INTO hover_tokens (user_id, access_token, refresh_token, token_type, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, hover_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	var expiresAt *time.Time
	if !t.ExpiresAt.IsZero() {
		expiresAt = &t.ExpiresAt
	}

	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	err := r.pool.QueryRow(ctx, query,
		t.UserID,
		t.AccessToken,
		nullString(t.RefreshToken),
		tokenType,
		nullTime(expiresAt),
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save hover token: %w", err)
	}

	return nil
}

// GetHoverToken retrieves a user's Hover tokens
func (r *PostgresRepository) GetHoverToken(ctx context.Context, userID string) (*models.HoverToken, error) {
	query := `
		SELECT user_id, access_token, refresh_token, token_type, expires_at, created_at, updated_at
		FROM hover_tokens
		WHERE user_id = $1
	`

	t, err := scanHoverToken(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get hover token: %w", err)
	}

	return t, nil
}

// ListExpiringHoverTokens returns refreshable tokens that expire before the given time
func (r *PostgresRepository) ListExpiringHoverTokens(ctx context.Context, before time.Time) ([]*models.HoverToken, error) {
	query := `
		SELECT user_id, access_token, refresh_token, token_type, expires_at, created_at, updated_at
		FROM hover_tokens
		WHERE expires_at IS NOT NULL
		  AND expires_at < $1
		  AND refresh_token IS NOT NULL
		ORDER BY expires_at ASC
	`

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring hover tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.HoverToken
	for rows.Next() {
		t, err := scanHoverToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hover token: %w", err)
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

func scanHoverToken(row rowScanner) (*models.HoverToken, error) {
	var t models.HoverToken
	var refreshToken sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&t.UserID, &t.AccessToken, &refreshToken, &t.TokenType, &expiresAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.RefreshToken = refreshToken.String
	if expiresAt.Valid {
		t.ExpiresAt = expiresAt.Time
	}

	return &t, nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// marshalList encodes a slice as JSON, writing [] for nil
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(items)
}

// marshalNullable encodes v as JSON, or SQL NULL for a nil pointer
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
