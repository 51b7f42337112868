package amc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// Repository persists AMC contracts in Postgres. The service history lives as
// a jsonb array on the contract row; logging a visit appends the record,
// bumps the used-visit counter and moves the next service date in a single
// UPDATE.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) NextSequence(ctx context.Context, tenantID string, year int) (int64, error) {
	return shared.NextIn(ctx, r.pool, tenantID, "amc", year)
}

func (r *Repository) Insert(ctx context.Context, c Contract) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshal amc items: %w", err)
	}
	services, err := json.Marshal(c.ServicesIncluded)
	if err != nil {
		return fmt.Errorf("marshal amc services: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO amc_contracts (
			id, tenant_id, amc_number, invoice_id, invoice_number, warranty_id,
			customer_name, customer_phone, site_address,
			contract_type, contract_period, start_date, end_date,
			value, payment_frequency, installment_amount,
			services_included, free_visits, used_visits, additional_visit_charge,
			items, items_covered, service_history, next_service_date,
			status, activated_at, notes, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,0,$19,$20,$21,'[]'::jsonb,NULL,$22,NULL,$23,$24,$25,$26)`,
		c.ID, c.TenantID, c.AMCNumber, nilIfEmpty(c.InvoiceID), c.InvoiceNumber, c.WarrantyID,
		c.CustomerName, c.CustomerPhone, c.SiteAddress,
		c.ContractType, c.ContractPeriod, c.StartDate, c.EndDate,
		c.Value.String(), c.PaymentFrequency, c.InstallmentAmount.String(),
		services, c.FreeVisits, c.AdditionalVisitCharge.String(),
		items, c.ItemsCovered,
		c.Status, c.Notes, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert amc contract: %w", err)
	}
	return nil
}

const contractSelect = `
	SELECT id, tenant_id, amc_number, coalesce(invoice_id, ''), invoice_number, warranty_id,
	       customer_name, customer_phone, site_address,
	       contract_type, contract_period, start_date, end_date,
	       value::text, payment_frequency, installment_amount::text,
	       services_included, free_visits, used_visits, additional_visit_charge::text,
	       items, items_covered, service_history, next_service_date,
	       status, activated_at, notes, created_by, created_at, updated_at
	FROM amc_contracts`

func (r *Repository) Get(ctx context.Context, tenantID, contractID string) (Contract, error) {
	row := r.pool.QueryRow(ctx, contractSelect+` WHERE tenant_id = $1 AND id = $2`, tenantID, contractID)
	return scanContract(row)
}

func (r *Repository) List(ctx context.Context, tenantID string, status Status) ([]Contract, error) {
	query := contractSelect + ` WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list amc contracts: %w", err)
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendVisit records the visit, bumps used_visits and moves the next
// service date in one statement. The over-allowance flag and charge are
// stamped from the post-increment counter inside the UPDATE, so concurrent
// visits cannot both pass as free, and the new counter is returned.
func (r *Repository) AppendVisit(ctx context.Context, tenantID, contractID string, rec ServiceRecord, charge decimal.Decimal) (int, error) {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal service record: %w", err)
	}
	var usedVisits int
	err = r.pool.QueryRow(ctx, `
		UPDATE amc_contracts
		SET service_history = service_history || (
		        $3::jsonb
		        || jsonb_build_object('overFreeAllowance', used_visits + 1 > free_visits)
		        || CASE WHEN used_visits + 1 > free_visits
		                THEN jsonb_build_object('visitCharge', $5::text)
		                ELSE '{}'::jsonb END
		    ),
		    used_visits = used_visits + 1,
		    next_service_date = $4,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING used_visits`,
		tenantID, contractID, recJSON, rec.NextServiceRecommended, charge.String()).Scan(&usedVisits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("append amc visit: %w", err)
	}
	return usedVisits, nil
}

// UpdateStatus moves a contract between states. Activation stamps
// activated_at.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, contractID string, status Status, nextServiceDate *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE amc_contracts
		SET status = $3,
		    activated_at = CASE WHEN $3 = 'active' THEN now() ELSE activated_at END,
		    next_service_date = coalesce($4, next_service_date),
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, contractID, status, nextServiceDate)
	if err != nil {
		return fmt.Errorf("update amc status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireLapsed marks active contracts past their end date as expired.
func (r *Repository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE amc_contracts SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND end_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed contracts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) Stats(ctx context.Context, tenantID string) (Stats, error) {
	var (
		s     Stats
		value string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'active'),
		       count(*) FILTER (WHERE status = 'active' AND end_date < now() + interval '30 days'),
		       coalesce(sum(value) FILTER (WHERE status = 'active'), 0)::text
		FROM amc_contracts
		WHERE tenant_id = $1`,
		tenantID).Scan(&s.Total, &s.Active, &s.ExpiringSoon, &value)
	if err != nil {
		return Stats{}, fmt.Errorf("amc stats: %w", err)
	}
	if s.ContractValue, err = decimal.NewFromString(value); err != nil {
		return Stats{}, fmt.Errorf("parse contract value: %w", err)
	}
	return s, nil
}

func scanContract(row pgx.Row) (Contract, error) {
	var (
		c                               Contract
		value, installment, visitCharge string
		services, items, history        []byte
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.AMCNumber, &c.InvoiceID, &c.InvoiceNumber, &c.WarrantyID,
		&c.CustomerName, &c.CustomerPhone, &c.SiteAddress,
		&c.ContractType, &c.ContractPeriod, &c.StartDate, &c.EndDate,
		&value, &c.PaymentFrequency, &installment,
		&services, &c.FreeVisits, &c.UsedVisits, &visitCharge,
		&items, &c.ItemsCovered, &history, &c.NextServiceDate,
		&c.Status, &c.ActivatedAt, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contract{}, ErrNotFound
	}
	if err != nil {
		return Contract{}, fmt.Errorf("scan amc contract: %w", err)
	}
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return Contract{}, fmt.Errorf("parse amc value: %w", err)
	}
	if c.InstallmentAmount, err = decimal.NewFromString(installment); err != nil {
		return Contract{}, fmt.Errorf("parse installment: %w", err)
	}
	if c.AdditionalVisitCharge, err = decimal.NewFromString(visitCharge); err != nil {
		return Contract{}, fmt.Errorf("parse visit charge: %w", err)
	}
	if err := json.Unmarshal(services, &c.ServicesIncluded); err != nil {
		return Contract{}, fmt.Errorf("unmarshal amc services: %w", err)
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return Contract{}, fmt.Errorf("unmarshal amc items: %w", err)
	}
	if err := json.Unmarshal(history, &c.ServiceHistory); err != nil {
		return Contract{}, fmt.Errorf("unmarshal service history: %w", err)
	}
	return c, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
