package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var ErrEmptyPatch = errors.New("patch: no valid fields to update")

const maxServiceNameLen = 255

// maxAmount matches NUMERIC(10, 2).
var maxAmount = decimal.New(1, 8)

// Subscription fields a client may write, in SET clause order.
const (
	fieldServiceName   = "serviceName"
	fieldAmount        = "amount"
	fieldStartDate     = "startDate"
	fieldEndDate       = "endDate"
	fieldManualRenewal = "manualRenewal"
	fieldAutoRenewal   = "autoRenewal"
)

var subscriptionColumnByField = []struct {
	field  string
	column string
}{
	{fieldServiceName, "service_name"},
	{fieldAmount, "amount"},
	{fieldStartDate, "start_date"},
	{fieldEndDate, "end_date"},
	{fieldManualRenewal, "manual_renewal"},
	{fieldAutoRenewal, "auto_renewal"},
}

// SubscriptionPatch is a partial update. A field is written only when its
// key was present in the request; StartDate and EndDate may be set to NULL.
type SubscriptionPatch struct {
	ServiceName   *string
	Amount        *decimal.Decimal
	StartDate     optionalDate
	EndDate       optionalDate
	ManualRenewal *bool
	AutoRenewal   *bool
}

type optionalDate struct {
	Set   bool
	Value *string
}

// Assignments returns the columns to set and their values, in allow-list order.
func (p SubscriptionPatch) Assignments() (columns []string, values []any) {
	for _, fc := range subscriptionColumnByField {
		var (
			v   any
			set bool
		)

		switch fc.field {
		case fieldServiceName:
			if set = p.ServiceName != nil; set {
				v = *p.ServiceName
			}
		case fieldAmount:
			if set = p.Amount != nil; set {
				v = *p.Amount
			}
		case fieldStartDate:
			set, v = p.StartDate.Set, dateParam(p.StartDate.Value)
		case fieldEndDate:
			set, v = p.EndDate.Set, dateParam(p.EndDate.Value)
		case fieldManualRenewal:
			if set = p.ManualRenewal != nil; set {
				v = *p.ManualRenewal
			}
		case fieldAutoRenewal:
			if set = p.AutoRenewal != nil; set {
				v = *p.AutoRenewal
			}
		}

		if set {
			columns = append(columns, fc.column)
			values = append(values, v)
		}
	}

	return columns, values
}

// ParseSubscriptionPatch reads the allow-listed keys of a JSON object and
// ignores the rest. A null body is an object with no keys.
func ParseSubscriptionPatch(body []byte) (SubscriptionPatch, error) {
	var p SubscriptionPatch

	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return p, ErrEmptyPatch
	}

	fields, err := decodeObject(body)
	if err != nil {
		return p, err
	}

	present := 0

	if raw, ok := fields[fieldServiceName]; ok {
		present++

		name, err := parseServiceName(raw)
		if err != nil {
			return p, err
		}

		p.ServiceName = &name
	}

	if raw, ok := fields[fieldAmount]; ok {
		present++

		amount, err := parseAmount(raw)
		if err != nil {
			return p, err
		}

		p.Amount = &amount
	}

	if raw, ok := fields[fieldStartDate]; ok {
		present++

		if p.StartDate.Value, err = parseDate(fieldStartDate, raw); err != nil {
			return p, err
		}

		p.StartDate.Set = true
	}

	if raw, ok := fields[fieldEndDate]; ok {
		present++

		if p.EndDate.Value, err = parseDate(fieldEndDate, raw); err != nil {
			return p, err
		}

		p.EndDate.Set = true
	}

	if raw, ok := fields[fieldManualRenewal]; ok {
		present++

		v := truthy(raw)
		p.ManualRenewal = &v
	}

	if raw, ok := fields[fieldAutoRenewal]; ok {
		present++

		v := truthy(raw)
		p.AutoRenewal = &v
	}

	if present == 0 {
		return p, ErrEmptyPatch
	}

	return p, nil
}

// ParseNewSubscription reads a create request. serviceName and amount are
// required; a key counts as missing when absent, null or "".
func ParseNewSubscription(body []byte) (Subscription, error) {
	var sub Subscription

	fields, err := decodeObject(body)
	if err != nil {
		return sub, err
	}

	for _, f := range []string{fieldServiceName, fieldAmount} {
		if isBlank(fields[f]) {
			return sub, invalid("%s is required", f)
		}
	}

	if sub.ServiceName, err = parseServiceName(fields[fieldServiceName]); err != nil {
		return sub, err
	}

	if sub.Amount, err = parseAmount(fields[fieldAmount]); err != nil {
		return sub, err
	}

	if sub.StartDate, err = parseDate(fieldStartDate, fields[fieldStartDate]); err != nil {
		return sub, err
	}

	if sub.EndDate, err = parseDate(fieldEndDate, fields[fieldEndDate]); err != nil {
		return sub, err
	}

	sub.ManualRenewal = truthy(fields[fieldManualRenewal])
	sub.AutoRenewal = truthy(fields[fieldAutoRenewal])

	return sub, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, invalid("request body must be a JSON object")
	}

	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isBlank(raw json.RawMessage) bool {
	return isNull(raw) || bytes.Equal(raw, []byte(`""`))
}

func parseServiceName(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil || isNull(raw) {
		return "", invalid("serviceName must be a non-empty string")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("serviceName must be a non-empty string")
	}

	if utf8.RuneCountInString(name) > maxServiceNameLen {
		return "", invalid("serviceName must be at most %d characters", maxServiceNameLen)
	}

	return name, nil
}

// parseAmount accepts a JSON number or a numeric string and rounds it to cents.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var amount decimal.Decimal
	if isBlank(raw) || amount.UnmarshalJSON(raw) != nil {
		return amount, invalid("amount must be a number")
	}

	amount = amount.Round(2)

	if amount.IsNegative() {
		return amount, invalid("amount must not be negative")
	}

	if amount.GreaterThanOrEqual(maxAmount) {
		return amount, invalid("amount must be less than %s", maxAmount)
	}

	return amount, nil
}

// parseDate returns nil for an absent or null date.
func parseDate(field string, raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, invalid("%s must be a date (YYYY-MM-DD)", field)
	}

	if s == "" {
		return nil, nil
	}

	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, invalid("%s must be a date (YYYY-MM-DD)", field)
	}

	s = t.Format(time.DateOnly)

	return &s, nil
}

// truthy follows the usual dynamic-language rules: false, 0, "", null and
// empty arrays or objects are false, everything else is true. Numbers are
// compared as decimals so values outside float64 range stay true.
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}

	switch x := v.(type) {
	case bool:
		return x
	case json.Number:
		n, err := decimal.NewFromString(x.String())
		return err != nil || !n.IsZero()
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return false
	}
}
