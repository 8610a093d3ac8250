package segments

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/integration"
)

const periodColumns = `id::text, from_date, to_date, entry_date, currency, has_partner, firm_retention, partners,
grand_total, firm_total, partner_pool_total, distributed_total, remainder, state, COALESCE(supersedes_id::text, ''),
gross_voucher_id, pool_voucher_id, created_by, created_at`

const entryColumns = `id::text, client_id::text, client_name, notes, lines, total, firm_share, partner_share, partner_shares`

// lineRecord is the stored form of one service line.
type lineRecord struct {
	Service apportion.Service  `json:"service"`
	Count   int                `json:"count"`
	Kind    apportion.RateKind `json:"kind"`
	Value   decimal.Decimal    `json:"value"`
}

func encodeLines(lines apportion.ServiceLines) ([]byte, error) {
	records := make([]lineRecord, 0, len(lines))
	for _, line := range lines {
		rate := apportion.RateValueOf(line.Rate)
		records = append(records, lineRecord{Service: line.Service, Count: line.Count, Kind: rate.Kind, Value: rate.Value})
	}
	return json.Marshal(records)
}

func decodeLines(raw []byte) (apportion.ServiceLines, error) {
	var records []lineRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return apportion.ServiceLines{}, err
	}
	var lines apportion.ServiceLines
	for i, svc := range apportion.Services {
		lines[i] = apportion.ServiceLine{Service: svc}
	}
	for _, rec := range records {
		idx, err := rec.Service.Index()
		if err != nil {
			return apportion.ServiceLines{}, err
		}
		spec, err := apportion.ParseRateSpec(rec.Kind, rec.Value)
		if err != nil {
			return apportion.ServiceLines{}, err
		}
		lines[idx] = apportion.ServiceLine{Service: rec.Service, Count: rec.Count, Rate: spec}
	}
	return lines, nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var (
		p        Period
		partners []byte
		state    string
		gross    pgtype.Text
		pool     pgtype.Text
	)
	err := row.Scan(&p.ID, &p.FromDate, &p.ToDate, &p.EntryDate, &p.Currency, &p.HasPartner, &p.FirmRetentionPercentage, &partners,
		&p.Totals.GrandTotal, &p.Totals.FirmTotal, &p.Totals.PartnerPoolTotal, &p.Totals.DistributedTotal, &p.Totals.Remainder,
		&state, &p.SupersedesID, &gross, &pool, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return Period{}, err
	}
	p.State = State(state)
	p.GrossVoucher = integration.VoucherID(gross.String)
	p.PoolVoucher = integration.VoucherID(pool.String)
	if err := json.Unmarshal(partners, &p.Partners); err != nil {
		return Period{}, fmt.Errorf("segments: decode partners of %s: %w", p.ID, err)
	}
	return p, nil
}

func scanEntry(row pgx.Row) (apportion.CompanyEntry, error) {
	var (
		e      apportion.CompanyEntry
		lines  []byte
		shares []byte
	)
	if err := row.Scan(&e.ID, &e.ClientID, &e.ClientName, &e.Notes, &lines, &e.Total, &e.FirmShare, &e.PartnerShare, &shares); err != nil {
		return apportion.CompanyEntry{}, err
	}
	decoded, err := decodeLines(lines)
	if err != nil {
		return apportion.CompanyEntry{}, fmt.Errorf("segments: decode lines of entry %s: %w", e.ID, err)
	}
	e.Lines = decoded
	if err := json.Unmarshal(shares, &e.PartnerShares); err != nil {
		return apportion.CompanyEntry{}, fmt.Errorf("segments: decode partner shares of entry %s: %w", e.ID, err)
	}
	return e, nil
}

func voucherText(id integration.VoucherID) pgtype.Text {
	return pgtype.Text{String: string(id), Valid: id != ""}
}
