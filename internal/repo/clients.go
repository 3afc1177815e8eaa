package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
)

const clientColumns = `id,name,active,contract_total,project_end_date,videos_per_month,designs_expected_json,video_rate,monthly_price,copywriter_id,designer_id`

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	var active int
	var contract, rate, price, designs string
	var endDate, copywriter, designer sql.NullString
	err := row.Scan(&c.ID, &c.Name, &active, &contract, &endDate, &c.Package.VideosPerMonth, &designs, &rate, &price, &copywriter, &designer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.Active = active != 0
	c.Package.ClientID = c.ID
	c.Package.CopywriterID = stringPtr(copywriter)
	c.Package.DesignerID = stringPtr(designer)
	if c.ContractTotal, err = decimal.NewFromString(contract); err != nil {
		return c, fmt.Errorf("client %s contract_total: %w", c.ID, err)
	}
	if c.Package.VideoRate, err = decimal.NewFromString(rate); err != nil {
		return c, fmt.Errorf("client %s video_rate: %w", c.ID, err)
	}
	if c.Package.MonthlyPrice, err = decimal.NewFromString(price); err != nil {
		return c, fmt.Errorf("client %s monthly_price: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(designs), &c.Package.DesignsExpected); err != nil {
		return c, fmt.Errorf("client %s designs_expected_json: %w", c.ID, err)
	}
	c.ProjectEndDate, err = parseNullTime(endDate)
	return c, err
}

func (r Repo) UpsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	designs := c.Package.DesignsExpected
	if designs == nil {
		designs = map[domain.DesignType]int{}
	}
	payload, err := json.Marshal(designs)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO clients(`+clientColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, active=excluded.active, contract_total=excluded.contract_total,
project_end_date=excluded.project_end_date, videos_per_month=excluded.videos_per_month,
designs_expected_json=excluded.designs_expected_json, video_rate=excluded.video_rate, monthly_price=excluded.monthly_price,
copywriter_id=excluded.copywriter_id, designer_id=excluded.designer_id`,
		c.ID, c.Name, boolInt(c.Active), c.ContractTotal.String(), nullableTime(c.ProjectEndDate), c.Package.VideosPerMonth, string(payload),
		c.Package.VideoRate.String(), c.Package.MonthlyPrice.String(), nullableStringPtr(c.Package.CopywriterID), nullableStringPtr(c.Package.DesignerID))
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=?`, id))
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpsertTeamMember(ctx context.Context, tx *sql.Tx, m domain.TeamMember) error {
	if m.PayModel == "" {
		m.PayModel = domain.PayPerUnit
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO team_members(id,name,email,role,pay_model,monthly_rate) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, role=excluded.role, pay_model=excluded.pay_model, monthly_rate=excluded.monthly_rate`,
		m.ID, m.Name, nullable(m.Email), m.Role, m.PayModel, m.MonthlyRate.String())
	return err
}

func (r Repo) ListTeam(ctx context.Context) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(email,''),role,pay_model,monthly_rate FROM team_members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		var rate string
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.PayModel, &rate); err != nil {
			return nil, err
		}
		if m.MonthlyRate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("team member %s monthly_rate: %w", m.ID, err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
