package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"reelline/internal/domain"
)

func (r Repo) InsertDelivery(ctx context.Context, tx *sql.Tx, d domain.Delivery) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR REPLACE INTO deliveries(id,kind,design_type,member_id,client_id,count,amount,delivered_at) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.Kind, nullable(string(d.DesignType)), d.MemberID, d.ClientID, d.Count, d.Amount.String(), timeText(d.DeliveredAt))
	return err
}

// ListDeliveries returns deliveries inside the period.
func (r Repo) ListDeliveries(ctx context.Context, period domain.Period) ([]domain.Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,kind,COALESCE(design_type,''),member_id,client_id,count,amount,delivered_at FROM deliveries
WHERE delivered_at >= ? AND delivered_at <= ? ORDER BY delivered_at, id`, timeText(period.Start()), timeText(period.End()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		var designType, amount, at string
		if err := rows.Scan(&d.ID, &d.Kind, &designType, &d.MemberID, &d.ClientID, &d.Count, &amount, &at); err != nil {
			return nil, err
		}
		d.DesignType = domain.DesignType(designType)
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("delivery %s amount: %w", d.ID, err)
		}
		if d.DeliveredAt, err = parseTime(at); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) InsertExpense(ctx context.Context, tx *sql.Tx, e domain.Expense) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR REPLACE INTO expenses(id,category,label,amount,period) VALUES (?,?,?,?,?)`,
		e.ID, e.Category, nullable(e.Label), e.Amount.String(), e.Period)
	return err
}

func (r Repo) ListExpenses(ctx context.Context, period domain.Period) ([]domain.Expense, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,category,COALESCE(label,''),amount,period FROM expenses WHERE period=? ORDER BY id`, period.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Expense
	for rows.Next() {
		var e domain.Expense
		var amount string
		if err := rows.Scan(&e.ID, &e.Category, &e.Label, &amount, &e.Period); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("expense %s amount: %w", e.ID, err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR REPLACE INTO payments(id,client_id,amount,paid_at,method) VALUES (?,?,?,?,?)`,
		p.ID, p.ClientID, p.Amount.String(), timeText(p.PaidAt), nullable(p.Method))
	return err
}

// ListPayments returns every payment; collected-to-date needs the full history.
func (r Repo) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,client_id,amount,paid_at,COALESCE(method,'') FROM payments ORDER BY paid_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var amount, at string
		if err := rows.Scan(&p.ID, &p.ClientID, &amount, &at, &p.Method); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s amount: %w", p.ID, err)
		}
		if p.PaidAt, err = parseTime(at); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
