package balances

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// cursor pins a history walk to the line watermark taken on the first page.
type cursor struct {
	Watermark int64     `json:"w"`
	Date      time.Time `json:"d"`
	LineID    int64     `json:"l"`
}

func encodeCursor(watermark int64, key accounting.HistoryKey) string {
	raw, _ := json.Marshal(cursor{Watermark: watermark, Date: key.Date.UTC(), LineID: key.LineID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, accounting.NewValidationError("cursor", "is malformed")
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.LineID <= 0 || c.Watermark < c.LineID {
		return cursor{}, accounting.NewValidationError("cursor", "is malformed")
	}
	return c, nil
}

func (c cursor) key() *accounting.HistoryKey {
	return &accounting.HistoryKey{Date: c.Date, LineID: c.LineID}
}
