package treatment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Accepted spellings per canonical field, first match wins.
var (
	patientAliases  = []string{"patient_id", "patientId", "patient"}
	dateAliases     = []string{"date", "application_date"}
	valueAliases    = []string{"value_paid", "value"}
	nextDateAliases = []string{"next_date", "next_application"}
	itemsAliases    = []string{"items", "assets", "lines"}
	assetAliases    = []string{"asset_id"}
	qtyAliases      = []string{"quantity", "qty"}
)

// NormalizeRequest maps a decoded JSON object onto the canonical
// CreateRequest, resolving field aliases. Values are not validated here.
func NormalizeRequest(raw map[string]interface{}) (CreateRequest, error) {
	var req CreateRequest
	req.PatientID = text(pick(raw, patientAliases))
	req.Date = text(pick(raw, dateAliases))
	req.ValuePaid = pick(raw, valueAliases)
	req.NextDate = text(pick(raw, nextDateAliases))

	rawItems := pick(raw, itemsAliases)
	if rawItems == nil {
		return req, nil
	}
	list, ok := rawItems.([]interface{})
	if !ok {
		return req, invalid("items must be a list")
	}
	req.Items = make([]ItemRequest, 0, len(list))
	for i, el := range list {
		obj, ok := el.(map[string]interface{})
		if !ok {
			return req, invalid("items[%d] must be an object", i)
		}
		req.Items = append(req.Items, ItemRequest{
			AssetID:  text(pick(obj, assetAliases)),
			Quantity: pick(obj, qtyAliases),
		})
	}
	return req, nil
}

func pick(obj map[string]interface{}, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func text(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}
