package relations

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const clientColumns = `id::text, code, name, type, relation_type, payment_type, status, phone, email, country, province,
segment_settings, use_count, created_by, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var (
		c        Client
		settings []byte
		created  pgtype.Timestamptz
		updated  pgtype.Timestamptz
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Type, &c.RelationType, &c.PaymentType, &c.Status, &c.Phone, &c.Email,
		&c.Country, &c.Province, &settings, &c.UseCount, &c.CreatedBy, &created, &updated); err != nil {
		return Client{}, err
	}
	if len(settings) > 0 && string(settings) != "null" {
		if err := json.Unmarshal(settings, &c.SegmentSettings); err != nil {
			return Client{}, fmt.Errorf("relations: decode segment settings of %s: %w", c.ID, err)
		}
	}
	c.CreatedAt = timeOf(created)
	c.UpdatedAt = timeOf(updated)
	return c, nil
}

func encodeSettings(c Client) ([]byte, error) {
	if len(c.SegmentSettings) == 0 {
		return nil, nil
	}
	return json.Marshal(c.SegmentSettings)
}

func timeOf(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}
