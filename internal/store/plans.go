package store

import "github.com/emberhost/ember/internal/models"

// CreatePlan inserts a catalog plan. Administrative operation.
func (s *Store) CreatePlan(p *models.Plan) error {
	query := `INSERT INTO plans (id, name, price, ram_mb, cpu_limit, disk_gb, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.conn.Exec(query, p.ID, p.Name, p.Price, p.RAMMB, p.CPULimit, p.DiskGB, p.Active)
	return err
}

// GetActivePlan fetches a plan by id, treating inactive plans as absent.
// Returns sql.ErrNoRows for both missing and deactivated plans so the create
// flow rejects them identically.
func (s *Store) GetActivePlan(id string) (*models.Plan, error) {
	query := `SELECT id, name, price, ram_mb, cpu_limit, disk_gb, active
		FROM plans WHERE id = ? AND active = 1`
	var p models.Plan
	err := s.conn.QueryRow(query, id).Scan(&p.ID, &p.Name, &p.Price,
		&p.RAMMB, &p.CPULimit, &p.DiskGB, &p.Active)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns all plans, active first.
func (s *Store) ListPlans() ([]models.Plan, error) {
	query := `SELECT id, name, price, ram_mb, cpu_limit, disk_gb, active
		FROM plans ORDER BY active DESC, price ASC`
	rows, err := s.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.RAMMB, &p.CPULimit,
			&p.DiskGB, &p.Active); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
