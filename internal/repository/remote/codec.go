package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// EncodeFarmer converts a farmer into its remote document.
func EncodeFarmer(f models.Farmer) Document {
	fields := meta(f.SyncMeta)
	fields["name"] = f.Name
	fields["phone"] = f.Phone
	fields["address"] = f.Address
	fields["total_amount"] = f.TotalAmount
	fields["pending_amount"] = f.PendingAmount
	fields["earnings"] = f.Earnings
	return Document{Kind: models.EntityFarmer, OwnerID: f.OwnerID, ID: f.Identity(), Fields: fields}
}

// DecodeFarmer converts a remote document into a synced farmer.
func DecodeFarmer(d Document) (models.Farmer, error) {
	if d.ID == "" {
		return models.Farmer{}, fmt.Errorf("decode farmer: empty document id")
	}
	return models.Farmer{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Name:          str(d.Fields, "name"),
		Phone:         str(d.Fields, "phone"),
		Address:       str(d.Fields, "address"),
		TotalAmount:   num(d.Fields, "total_amount"),
		PendingAmount: num(d.Fields, "pending_amount"),
		Earnings:      str(d.Fields, "earnings"),
		SyncMeta:      decodeMeta(d.Fields),
	}, nil
}

// PriceBracketDocID is the key-derived document id used for brackets created here.
func PriceBracketDocID(b models.PriceBracket) string {
	return b.BusinessKey()
}

// EncodePriceBracket converts a bracket into its remote document.
func EncodePriceBracket(b models.PriceBracket) Document {
	fields := meta(b.SyncMeta)
	fields["from"] = b.From
	fields["to"] = b.To
	fields["price"] = b.Price
	return Document{Kind: models.EntityPriceBracket, OwnerID: b.AddedBy, ID: b.Identity(), Fields: fields}
}

// DecodePriceBracket converts a remote document into a synced bracket. Legacy
// documents stored under generated ids keep that id as RemoteID.
func DecodePriceBracket(d Document) (models.PriceBracket, error) {
	if _, ok := d.Fields["from"]; !ok {
		return models.PriceBracket{}, fmt.Errorf("decode price bracket %s: missing from", d.ID)
	}
	if _, ok := d.Fields["to"]; !ok {
		return models.PriceBracket{}, fmt.Errorf("decode price bracket %s: missing to", d.ID)
	}
	return models.PriceBracket{
		AddedBy:  d.OwnerID,
		From:     num(d.Fields, "from"),
		To:       num(d.Fields, "to"),
		Price:    num(d.Fields, "price"),
		RemoteID: d.ID,
		SyncMeta: decodeMeta(d.Fields),
	}, nil
}

// EncodeCollection converts a daily collection into its remote document.
func EncodeCollection(c models.DailyCollection) Document {
	fields := meta(c.SyncMeta)
	fields["farmer_id"] = c.FarmerID
	fields["date"] = c.Date
	fields["am_milk"] = c.AMMilk
	fields["am_fat"] = c.AMFat
	fields["am_price"] = c.AMPrice
	fields["pm_milk"] = c.PMMilk
	fields["pm_fat"] = c.PMFat
	fields["pm_price"] = c.PMPrice
	fields["total_milk"] = c.TotalMilk
	fields["total_fat"] = c.TotalFat
	fields["total_amount"] = c.TotalAmount
	return Document{Kind: models.EntityCollection, OwnerID: c.OwnerID, ID: c.Identity(), Fields: fields}
}

// DecodeCollection converts a remote document into a synced collection.
func DecodeCollection(d Document) (models.DailyCollection, error) {
	date, farmerID := splitNested(d.ID)
	if v := str(d.Fields, "date"); v != "" {
		date = v
	}
	if v := str(d.Fields, "farmer_id"); v != "" {
		farmerID = v
	}
	if date == "" || farmerID == "" {
		return models.DailyCollection{}, fmt.Errorf("decode collection %s: missing date or farmer", d.ID)
	}

	c := models.DailyCollection{
		OwnerID:  d.OwnerID,
		FarmerID: farmerID,
		Date:     date,
		AMMilk:   num(d.Fields, "am_milk"),
		AMFat:    num(d.Fields, "am_fat"),
		AMPrice:  num(d.Fields, "am_price"),
		PMMilk:   num(d.Fields, "pm_milk"),
		PMFat:    num(d.Fields, "pm_fat"),
		PMPrice:  num(d.Fields, "pm_price"),
		SyncMeta: decodeMeta(d.Fields),
	}
	c.Recalculate()
	return c, nil
}

// EncodeBillingCycle converts a cycle into its remote document.
func EncodeBillingCycle(c models.BillingCycle) Document {
	fields := meta(c.SyncMeta)
	fields["name"] = c.Name
	fields["start_date"] = c.StartDate
	fields["end_date"] = c.EndDate
	fields["total_amount"] = c.TotalAmount
	fields["active"] = c.Active
	fields["paid"] = c.Paid
	return Document{Kind: models.EntityBillingCycle, OwnerID: c.OwnerID, ID: c.ID, Fields: fields}
}

// DecodeBillingCycle converts a remote document into a synced cycle.
func DecodeBillingCycle(d Document) (models.BillingCycle, error) {
	c := models.BillingCycle{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Name:        str(d.Fields, "name"),
		StartDate:   str(d.Fields, "start_date"),
		EndDate:     str(d.Fields, "end_date"),
		TotalAmount: num(d.Fields, "total_amount"),
		Active:      boolean(d.Fields, "active"),
		Paid:        boolean(d.Fields, "paid"),
		SyncMeta:    decodeMeta(d.Fields),
	}
	if c.ID == "" || c.StartDate == "" || c.EndDate == "" {
		return models.BillingCycle{}, fmt.Errorf("decode billing cycle %s: missing id or range", d.ID)
	}
	return c, nil
}

// EncodeBillingDetail converts a farmer billing detail into its remote document.
func EncodeBillingDetail(b models.FarmerBillingDetail) Document {
	fields := meta(b.SyncMeta)
	fields["farmer_id"] = b.FarmerID
	fields["billing_cycle_id"] = b.BillingCycleID
	fields["original_amount"] = b.OriginalAmount
	fields["paid_amount"] = b.PaidAmount
	fields["balance_amount"] = b.BalanceAmount
	fields["paid"] = b.Paid
	return Document{Kind: models.EntityBillingDetail, OwnerID: b.OwnerID, ID: b.Identity(), Fields: fields}
}

// DecodeBillingDetail converts a remote document into a synced detail.
func DecodeBillingDetail(d Document) (models.FarmerBillingDetail, error) {
	cycleID, farmerID := splitNested(d.ID)
	if v := str(d.Fields, "billing_cycle_id"); v != "" {
		cycleID = v
	}
	if v := str(d.Fields, "farmer_id"); v != "" {
		farmerID = v
	}
	if cycleID == "" || farmerID == "" {
		return models.FarmerBillingDetail{}, fmt.Errorf("decode billing detail %s: missing cycle or farmer", d.ID)
	}
	return models.FarmerBillingDetail{
		OwnerID:        d.OwnerID,
		BillingCycleID: cycleID,
		FarmerID:       farmerID,
		OriginalAmount: num(d.Fields, "original_amount"),
		PaidAmount:     num(d.Fields, "paid_amount"),
		BalanceAmount:  num(d.Fields, "balance_amount"),
		Paid:           boolean(d.Fields, "paid"),
		SyncMeta:       decodeMeta(d.Fields),
	}, nil
}

// EncodeUser converts a user into its remote document.
func EncodeUser(u models.User) Document {
	fields := meta(u.SyncMeta)
	fields["name"] = u.Name
	fields["phone"] = u.Phone
	fields["role"] = string(u.Role)
	fields["password_hash"] = u.PasswordHash
	return Document{Kind: models.EntityUser, OwnerID: u.ID, ID: u.ID, Fields: fields}
}

// DecodeUser converts a remote document into a synced user.
func DecodeUser(d Document) (models.User, error) {
	id := d.ID
	if id == "" {
		id = d.OwnerID
	}
	if id == "" {
		return models.User{}, fmt.Errorf("decode user: empty id")
	}
	return models.User{
		ID:           id,
		Name:         str(d.Fields, "name"),
		Phone:        str(d.Fields, "phone"),
		Role:         models.Role(str(d.Fields, "role")),
		PasswordHash: str(d.Fields, "password_hash"),
		SyncMeta:     decodeMeta(d.Fields),
	}, nil
}

func meta(m models.SyncMeta) map[string]any {
	return map[string]any{
		"uid":        m.UID,
		"revision":   m.Revision,
		"created_at": unixMillis(m.CreatedAt),
		"updated_at": unixMillis(m.UpdatedAt),
	}
}

func decodeMeta(fields map[string]any) models.SyncMeta {
	return models.SyncMeta{
		UID:       str(fields, "uid"),
		Revision:  int64(num(fields, "revision")),
		Synced:    true,
		CreatedAt: millis(fields, "created_at"),
		UpdatedAt: millis(fields, "updated_at"),
	}
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func str(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func num(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func boolean(fields map[string]any, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return num(fields, key) != 0
	}
}

func millis(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v.UTC()
	default:
		n := int64(num(fields, key))
		if n == 0 {
			return time.Time{}
		}
		return time.UnixMilli(n).UTC()
	}
}
