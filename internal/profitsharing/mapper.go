package profitsharing

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rawdatain/backoffice/internal/integration"
)

const dateLayout = "2006-01-02"

const systemColumns = `id, currency, total_profit, notes, created_at, updated_at`

const manualColumns = `id::text, from_date, to_date, profit, currency, partners, notes, revision, posted_amount,
last_voucher_id, created_by, created_at, updated_at`

const shareColumns = `id::text, profit_month_id, currency, partner_id::text, partner_name, percentage, amount, notes,
created_by, created_at`

func scanSystem(row pgx.Row) (MonthlyProfit, error) {
	var m MonthlyProfit
	if err := row.Scan(&m.ID, &m.Currency, &m.TotalProfit, &m.Notes, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return MonthlyProfit{}, err
	}
	m.FromSystem = true
	return m, nil
}

func scanManual(row pgx.Row) (MonthlyProfit, error) {
	var (
		m        MonthlyProfit
		from, to time.Time
		partners []byte
		voucher  pgtype.Text
	)
	err := row.Scan(&m.ID, &from, &to, &m.TotalProfit, &m.Currency, &partners, &m.Notes, &m.Revision, &m.PostedAmount,
		&voucher, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return MonthlyProfit{}, err
	}
	m.FromDate = from.Format(dateLayout)
	m.ToDate = to.Format(dateLayout)
	m.VoucherID = integration.VoucherID(voucher.String)
	if err := json.Unmarshal(partners, &m.Partners); err != nil {
		return MonthlyProfit{}, fmt.Errorf("profitsharing: decode partners of %s: %w", m.ID, err)
	}
	return m, nil
}

func scanShare(row pgx.Row) (ProfitShare, error) {
	var s ProfitShare
	err := row.Scan(&s.ID, &s.ProfitMonthID, &s.Currency, &s.PartnerID, &s.PartnerName, &s.Percentage, &s.Amount, &s.Notes,
		&s.CreatedBy, &s.CreatedAt)
	return s, err
}

func voucherText(v integration.VoucherID) pgtype.Text {
	return pgtype.Text{String: string(v), Valid: v != ""}
}
