package server

import (
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// BookingFeatures is the request body of POST /api/predict and the fields of
// the HTML form. Pointers distinguish a missing field from a zero value.
type BookingFeatures struct {
	LeadTime           *int     `json:"lead_time" validate:"required,gte=0"`
	NoOfSpecialRequest *int     `json:"no_of_special_request" validate:"required,gte=0"`
	AvgPricePerRoom    *float64 `json:"avg_price_per_room" validate:"required,gte=0"`
	ArrivalMonth       *int     `json:"arrival_month" validate:"required,gte=1,lte=12"`
	ArrivalDate        *int     `json:"arrival_date" validate:"required,gte=1,lte=31"`
	MarketSegmentType  *int     `json:"market_segment_type" validate:"required"`
	NoOfWeekNights     *int     `json:"no_of_week_nights" validate:"required,gte=0"`
	NoOfWeekendNights  *int     `json:"no_of_weekend_nights" validate:"required,gte=0"`
	TypeOfMealPlan     *int     `json:"type_of_meal_plan" validate:"required"`
	RoomTypeReserved   *int     `json:"room_type_reserved" validate:"required"`
}

// daysInMonth ignores leap years; February always has 28 days.
var daysInMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// field describes one booking input: its request name, the dataset column it
// feeds and how the form renders it.
type field struct {
	Name   string
	Column string
	Label  string
	Float  bool
	Min    string
	Max    string
}

// bookingFields is the request order of BookingFeatures.
var bookingFields = []field{
	{Name: "lead_time", Column: "lead_time", Label: "Lead time (days)", Min: "0"},
	{Name: "no_of_special_request", Column: "no_of_special_requests", Label: "Special requests", Min: "0"},
	{Name: "avg_price_per_room", Column: "avg_price_per_room", Label: "Average price per room", Float: true, Min: "0"},
	{Name: "arrival_month", Column: "arrival_month", Label: "Arrival month", Min: "1", Max: "12"},
	{Name: "arrival_date", Column: "arrival_date", Label: "Arrival date", Min: "1", Max: "31"},
	{Name: "market_segment_type", Column: "market_segment_type", Label: "Market segment"},
	{Name: "no_of_week_nights", Column: "no_of_week_nights", Label: "Week nights", Min: "0"},
	{Name: "no_of_weekend_nights", Column: "no_of_weekend_nights", Label: "Weekend nights", Min: "0"},
	{Name: "type_of_meal_plan", Column: "type_of_meal_plan", Label: "Meal plan"},
	{Name: "room_type_reserved", Column: "room_type_reserved", Label: "Room type"},
}

// pointers returns the struct fields in bookingFields order.
func (b *BookingFeatures) pointers() []interface{} {
	return []interface{}{
		&b.LeadTime, &b.NoOfSpecialRequest, &b.AvgPricePerRoom, &b.ArrivalMonth, &b.ArrivalDate,
		&b.MarketSegmentType, &b.NoOfWeekNights, &b.NoOfWeekendNights, &b.TypeOfMealPlan, &b.RoomTypeReserved,
	}
}

// Values maps the features to dataset column names.
func (b *BookingFeatures) Values() map[string]float64 {
	out := make(map[string]float64, len(bookingFields))
	for i, p := range b.pointers() {
		switch v := p.(type) {
		case **int:
			if *v != nil {
				out[bookingFields[i].Column] = float64(**v)
			}
		case **float64:
			if *v != nil {
				out[bookingFields[i].Column] = **v
			}
		}
	}
	return out
}

// Map returns the features keyed by request field name, as echoed back in
// API responses.
func (b *BookingFeatures) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(bookingFields))
	for i, p := range b.pointers() {
		switch v := p.(type) {
		case **int:
			if *v != nil {
				out[bookingFields[i].Name] = **v
			}
		case **float64:
			if *v != nil {
				out[bookingFields[i].Name] = **v
			}
		}
	}
	return out
}

// CheckCalendar verifies that the arrival day exists in the arrival month.
// The returned messages are shown to users verbatim.
func (b *BookingFeatures) CheckCalendar() string {
	if b.ArrivalMonth == nil || b.ArrivalDate == nil {
		return ""
	}
	m, d := *b.ArrivalMonth, *b.ArrivalDate
	if m < 1 || m > 12 {
		return "Arrival month must be between 1 and 12"
	}
	if d < 1 || d > 31 {
		return "Arrival date must be between 1 and 31"
	}
	if d > daysInMonth[m] {
		return fmt.Sprintf("Invalid date: %d/%d. Month %d has %d days.", m, d, m, daysInMonth[m])
	}
	return ""
}

// parseForm reads the booking fields from a submitted form. Every missing or
// non-numeric field yields one "field: message" entry.
func parseForm(form url.Values) (*BookingFeatures, []string) {
	var (
		b        BookingFeatures
		problems []string
	)
	for i, p := range b.pointers() {
		f := bookingFields[i]
		raw := strings.TrimSpace(form.Get(f.Name))
		if raw == "" {
			problems = append(problems, f.Name+": field required")
			continue
		}
		if msg := setValue(p, raw); msg != "" {
			problems = append(problems, f.Name+": "+msg)
		}
	}
	return &b, problems
}

// decodeBooking reads a JSON object one field at a time so that type errors
// carry the request field name. Absent and null fields are left for the
// validator to report.
func decodeBooking(body []byte) (*BookingFeatures, []string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if json.Valid(body) {
			return nil, []string{"body: value is not a valid dict"}
		}
		return nil, []string{"body: JSON decode error"}
	}
	if fields == nil {
		return nil, []string{"body: field required"}
	}

	var (
		b        BookingFeatures
		problems []string
	)
	for i, p := range b.pointers() {
		f := bookingFields[i]
		raw := strings.TrimSpace(string(fields[f.Name]))
		if raw == "" || raw == "null" {
			continue
		}
		// quoted strings, booleans, arrays and objects all fail to parse here
		if msg := setValue(p, raw); msg != "" {
			problems = append(problems, f.Name+": "+msg)
		}
	}
	return &b, problems
}

// setValue parses raw into the field behind p and returns a message when it
// cannot. Integer fields accept integral floats such as 30.0.
func setValue(p interface{}, raw string) string {
	switch v := p.(type) {
	case **int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			x, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || x != math.Trunc(x) || math.Abs(x) > 1<<53 {
				return "value is not a valid integer"
			}
			n = int(x)
		}
		*v = &n
	case **float64:
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return "value is not a valid float"
		}
		*v = &x
	}
	return ""
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessages turns validator errors into "field: message" entries.
func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "field required"
		case "gte":
			msg = "ensure this value is greater than or equal to " + fe.Param()
		case "lte":
			msg = "ensure this value is less than or equal to " + fe.Param()
		default:
			msg = "failed on the '" + fe.Tag() + "' rule"
		}
		out = append(out, fe.Field()+": "+msg)
	}
	return out
}

// requestName maps a dataset column back to its request field name.
func requestName(column string) string {
	for _, f := range bookingFields {
		if f.Column == column {
			return f.Name
		}
	}
	return column
}
