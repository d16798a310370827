package dashboard

import (
	"time"
)

// Zone is the fixed UTC+8 offset readings are stamped in.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// Field is one extracted value. Present is false when the value could not
// be read; Text is then empty and carries no meaning.
type Field struct {
	Text    string
	Present bool
}

// Some returns a present Field holding text.
func Some(text string) Field {
	return Field{Text: text, Present: true}
}

// Absent returns a missing Field.
func Absent() Field {
	return Field{}
}

// String returns the text, or "<absent>" for a missing field.
func (f Field) String() string {
	if !f.Present {
		return "<absent>"
	}
	return f.Text
}

// Reading is the snapshot produced by one polling cycle.
type Reading struct {
	RemainingUnit    Field
	RemainingBalance Field
	MeterLastPolled  Field
	CapturedAt       time.Time
}

// Value names
const (
	NameRemainingUnit    = "remaining_unit"
	NameRemainingBalance = "remaining_balance"
	NameMeterLastPolled  = "meter_last_polled"
	NameLastRun          = "last_run"
)

// NamedValue pairs a value name with its field.
type NamedValue struct {
	Name  string
	Value Field
}

// Values returns the four named values of the reading in publish order.
// The capture time is always present.
func (r Reading) Values() []NamedValue {
	return []NamedValue{
		{Name: NameRemainingUnit, Value: r.RemainingUnit},
		{Name: NameRemainingBalance, Value: r.RemainingBalance},
		{Name: NameMeterLastPolled, Value: r.MeterLastPolled},
		{Name: NameLastRun, Value: Some(r.CapturedAt.Format(time.RFC3339))},
	}
}

// Missing returns the names of the fields that could not be read.
func (r Reading) Missing() []string {
	var missing []string
	for _, v := range r.Values() {
		if !v.Value.Present {
			missing = append(missing, v.Name)
		}
	}
	return missing
}
