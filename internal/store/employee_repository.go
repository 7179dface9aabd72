package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

const employeeColumns = `id, tenant_id, full_name, email, job_title, created_at, updated_at`

// EmployeeRepository handles database operations for employees. Every
// method takes the tenant scope; with an empty scope reads return nothing.
type EmployeeRepository struct {
	db *DB
}

// NewEmployeeRepository creates a new EmployeeRepository
func NewEmployeeRepository(db *DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

func scanEmployee(row pgx.Row) (*model.Employee, error) {
	e := &model.Employee{}
	err := row.Scan(&e.ID, &e.TenantID, &e.FullName, &e.Email, &e.JobTitle, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new employee, stamping the scope's tenant.
func (r *EmployeeRepository) Create(ctx context.Context, scope tenancy.Scope, e *model.Employee) error {
	tenantID, err := stampTenant(ctx, scope, e)
	if err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt

	return r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		query := `INSERT INTO employees (` + employeeColumns + `)
		          VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := tx.Exec(ctx, query, e.ID, tenantID, e.FullName, e.Email, e.JobTitle, e.CreatedAt, e.UpdatedAt)
		return err
	})
}

// GetByID retrieves an employee of the scope's tenant. Rows of other tenants
// are indistinguishable from missing rows.
func (r *EmployeeRepository) GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*model.Employee, error) {
	tenantID, ok := scope.TenantID()
	if !ok {
		return nil, nil
	}

	var e *model.Employee
	err := r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1 AND tenant_id = $2`
		var err error
		e, err = scanEmployee(tx.QueryRow(ctx, query, id, tenantID))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns a page of employees ordered by name.
func (r *EmployeeRepository) List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]model.Employee, error) {
	tenantID, ok := scope.TenantID()
	if !ok {
		return []model.Employee{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	out := []model.Employee{}
	err := r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		query := `SELECT ` + employeeColumns + ` FROM employees
		          WHERE tenant_id = $1 ORDER BY full_name, id LIMIT $2 OFFSET $3`
		rows, err := tx.Query(ctx, query, tenantID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEmployee(rows)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update updates an employee in place. The tenant of e must be the scope's.
func (r *EmployeeRepository) Update(ctx context.Context, scope tenancy.Scope, e *model.Employee) error {
	tenantID, err := stampTenant(ctx, scope, e)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()

	return r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		query := `UPDATE employees SET full_name = $3, email = $4, job_title = $5, updated_at = $6
		          WHERE id = $1 AND tenant_id = $2
		          RETURNING created_at`
		err := tx.QueryRow(ctx, query, e.ID, tenantID, e.FullName, e.Email, e.JobTitle, e.UpdatedAt).Scan(&e.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrEmployeeNotFound
		}
		return err
	})
}

// Delete removes an employee of the scope's tenant.
func (r *EmployeeRepository) Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error {
	tenantID, ok := scope.TenantID()
	if !ok {
		return apperr.ErrMissingTenant
	}
	return r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM employees WHERE id = $1 AND tenant_id = $2`, id, tenantID)
		if err != nil {
			return fmt.Errorf("delete employee: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrEmployeeNotFound
		}
		return nil
	})
}
