package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// EventType is the closed set of billable event types emitted by project work
type EventType string

const (
	EventTypeTimeEntry EventType = "time_entry"
	EventTypeMilestone EventType = "milestone"
	EventTypeExpense   EventType = "expense"
	EventTypeFixedFee  EventType = "fixed_fee"
)

// IsValid checks if the event type is one of the known types
func (t EventType) IsValid() bool {
	_, ok := payloadSchemas[t]
	return ok
}

// decimalPattern accepts non-negative decimal strings at AmountScale or finer
const decimalPattern = `^[0-9]+(\\.[0-9]{1,4})?$`

var payloadSchemas = map[EventType]string{
	EventTypeTimeEntry: `{
		"type": "object",
		"required": ["description", "hours", "rate", "currency"],
		"properties": {
			"description": {"type": "string", "minLength": 1, "maxLength": 500},
			"hours": {"type": "string", "pattern": "` + decimalPattern + `"},
			"rate": {"type": "string", "pattern": "` + decimalPattern + `"},
			"currency": {"type": "string", "pattern": "^[A-Z]{3}$"}
		}
	}`,
	EventTypeMilestone: `{
		"type": "object",
		"required": ["milestone", "amount", "currency"],
		"properties": {
			"milestone": {"type": "string", "minLength": 1, "maxLength": 200},
			"amount": {"type": "string", "pattern": "` + decimalPattern + `"},
			"currency": {"type": "string", "pattern": "^[A-Z]{3}$"}
		}
	}`,
	EventTypeExpense: `{
		"type": "object",
		"required": ["description", "amount", "currency"],
		"properties": {
			"description": {"type": "string", "minLength": 1, "maxLength": 500},
			"amount": {"type": "string", "pattern": "` + decimalPattern + `"},
			"currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
			"receipt_ref": {"type": "string"}
		}
	}`,
	EventTypeFixedFee: `{
		"type": "object",
		"required": ["description", "amount", "currency"],
		"properties": {
			"description": {"type": "string", "minLength": 1, "maxLength": 500},
			"amount": {"type": "string", "pattern": "` + decimalPattern + `"},
			"currency": {"type": "string", "pattern": "^[A-Z]{3}$"}
		}
	}`,
}

var (
	compiledOnce    sync.Once
	compiledSchemas map[EventType]*jsonschema.Schema
	compileErr      error
)

func schemas() (map[EventType]*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		out := make(map[EventType]*jsonschema.Schema, len(payloadSchemas))
		for t, src := range payloadSchemas {
			url := fmt.Sprintf("https://ledger.schemas.local/billable/%s.schema.json", t)
			if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("payload schema %s: %w", t, err)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("payload schema %s: %w", t, err)
				return
			}
			out[t] = s
		}
		compiledSchemas = out
	})
	return compiledSchemas, compileErr
}

// ValidatePayload checks a raw payload against the schema of its event type
func ValidatePayload(t EventType, payload json.RawMessage) error {
	if !t.IsValid() {
		return shared.NewValidationError("event_type", string(t), "unknown billable event type")
	}
	all, err := schemas()
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return shared.NewValidationError("event_payload", "", "payload is not valid JSON")
	}
	if err := all[t].Validate(doc); err != nil {
		return shared.NewValidationError("event_payload", "", err.Error())
	}
	basis, err := DecodeLineBasis(t, payload)
	if err != nil {
		return err
	}
	if !basis.Quantity.IsPositive() {
		return shared.NewValidationError("event_payload.hours", basis.Quantity.String(), "must be positive")
	}
	return nil
}

// LineBasis is what an invoice line is priced from
type LineBasis struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Currency    string
}

// Amount returns quantity times unit price at AmountScale
func (b LineBasis) Amount() decimal.Decimal {
	return RoundAmount(b.Quantity.Mul(b.UnitPrice))
}

type timeEntryPayload struct {
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	Currency    string          `json:"currency"`
}

type milestonePayload struct {
	Milestone string          `json:"milestone"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type amountPayload struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// DecodeLineBasis maps a validated payload of the given type to its line basis
func DecodeLineBasis(t EventType, payload json.RawMessage) (LineBasis, error) {
	switch t {
	case EventTypeTimeEntry:
		var p timeEntryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return LineBasis{}, shared.NewValidationError("event_payload", "", "cannot decode time entry payload")
		}
		return LineBasis{Description: p.Description, Quantity: p.Hours, UnitPrice: p.Rate, Currency: p.Currency}, nil
	case EventTypeMilestone:
		var p milestonePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return LineBasis{}, shared.NewValidationError("event_payload", "", "cannot decode milestone payload")
		}
		return LineBasis{Description: p.Milestone, Quantity: decimal.NewFromInt(1), UnitPrice: p.Amount, Currency: p.Currency}, nil
	case EventTypeExpense, EventTypeFixedFee:
		var p amountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return LineBasis{}, shared.NewValidationError("event_payload", "", "cannot decode payload")
		}
		return LineBasis{Description: p.Description, Quantity: decimal.NewFromInt(1), UnitPrice: p.Amount, Currency: p.Currency}, nil
	default:
		return LineBasis{}, shared.NewValidationError("event_type", string(t), "unknown billable event type")
	}
}
