package server

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func validBooking() *BookingFeatures {
	price := 150.0
	return &BookingFeatures{
		LeadTime:           intp(30),
		NoOfSpecialRequest: intp(1),
		AvgPricePerRoom:    &price,
		ArrivalMonth:       intp(6),
		ArrivalDate:        intp(15),
		MarketSegmentType:  intp(2),
		NoOfWeekNights:     intp(3),
		NoOfWeekendNights:  intp(2),
		TypeOfMealPlan:     intp(1),
		RoomTypeReserved:   intp(2),
	}
}

func TestCheckCalendar(t *testing.T) {
	tests := []struct {
		month, date int
		want        string
	}{
		{6, 15, ""},
		{2, 28, ""},
		{2, 29, "Invalid date: 2/29. Month 2 has 28 days."},
		{4, 31, "Invalid date: 4/31. Month 4 has 30 days."},
		{12, 31, ""},
		{13, 1, "Arrival month must be between 1 and 12"},
		{0, 1, "Arrival month must be between 1 and 12"},
		{1, 32, "Arrival date must be between 1 and 31"},
		{1, 0, "Arrival date must be between 1 and 31"},
	}
	for _, tt := range tests {
		b := validBooking()
		b.ArrivalMonth, b.ArrivalDate = intp(tt.month), intp(tt.date)
		assert.Equal(t, tt.want, b.CheckCalendar(), "%d/%d", tt.month, tt.date)
	}
}

func TestValuesUseDatasetColumns(t *testing.T) {
	values := validBooking().Values()
	assert.Len(t, values, 10)
	assert.Equal(t, 1.0, values["no_of_special_requests"])
	assert.NotContains(t, values, "no_of_special_request")
	assert.Equal(t, 150.0, values["avg_price_per_room"])

	m := validBooking().Map()
	assert.Equal(t, 1, m["no_of_special_request"])
	assert.Equal(t, "no_of_special_request", requestName("no_of_special_requests"))
	assert.Equal(t, "lead_time", requestName("lead_time"))
}

func TestParseForm(t *testing.T) {
	form := url.Values{}
	for k, v := range map[string]string{
		"lead_time": "30", "no_of_special_request": "1", "avg_price_per_room": "150.5",
		"arrival_month": "6", "arrival_date": "15", "market_segment_type": "2",
		"no_of_week_nights": "3", "no_of_weekend_nights": "2", "type_of_meal_plan": "1",
		"room_type_reserved": "2",
	} {
		form.Set(k, v)
	}
	b, problems := parseForm(form)
	require.Empty(t, problems)
	assert.Equal(t, 150.5, *b.AvgPricePerRoom)
	assert.Equal(t, 30, *b.LeadTime)

	form.Set("lead_time", "soon")
	form.Del("arrival_date")
	_, problems = parseForm(form)
	assert.Equal(t, []string{
		"lead_time: value is not a valid integer",
		"arrival_date: field required",
	}, problems)
}

func TestValidatorMessages(t *testing.T) {
	v := newValidator()
	require.NoError(t, v.Struct(validBooking()))

	b := validBooking()
	b.LeadTime = intp(-1)
	b.ArrivalMonth = intp(13)
	b.RoomTypeReserved = nil
	msgs := validationMessages(v.Struct(b))
	assert.ElementsMatch(t, []string{
		"lead_time: ensure this value is greater than or equal to 0",
		"arrival_month: ensure this value is less than or equal to 12",
		"room_type_reserved: field required",
	}, msgs)
}

func TestDecodeBooking(t *testing.T) {
	body := `{"lead_time": 30.0, "no_of_special_request": 1, "avg_price_per_room": 99,
		"arrival_month": 6, "arrival_date": 15, "market_segment_type": 2, "no_of_week_nights": 3,
		"no_of_weekend_nights": null, "type_of_meal_plan": 1, "room_type_reserved": 2, "extra": "ignored"}`
	b, problems := decodeBooking([]byte(body))
	require.Empty(t, problems)
	assert.Equal(t, 30, *b.LeadTime, "integral floats are accepted for integers")
	assert.Equal(t, 99.0, *b.AvgPricePerRoom)
	assert.Nil(t, b.NoOfWeekendNights, "null is left for the validator")
	assert.Equal(t, []string{"no_of_weekend_nights: field required"}, validationMessages(newValidator().Struct(b)))

	tests := []struct {
		body string
		want []string
	}{
		{`{"lead_time": "30"}`, []string{"lead_time: value is not a valid integer"}},
		{`{"lead_time": 1.5}`, []string{"lead_time: value is not a valid integer"}},
		{`{"room_type_reserved": false}`, []string{"room_type_reserved: value is not a valid integer"}},
		{`{"arrival_date": [1]}`, []string{"arrival_date: value is not a valid integer"}},
		{`{"avg_price_per_room": {"amount": 1}}`, []string{"avg_price_per_room: value is not a valid float"}},
		{`{"avg_price_per_room": "cheap"}`, []string{"avg_price_per_room: value is not a valid float"}},
		{`{"lead_time": `, []string{"body: JSON decode error"}},
		{`null`, []string{"body: field required"}},
	}
	for _, tt := range tests {
		_, problems := decodeBooking([]byte(tt.body))
		assert.Equal(t, tt.want, problems, tt.body)
	}

	_, problems = decodeBooking([]byte(`[1, 2]`))
	assert.Equal(t, []string{"body: value is not a valid dict"}, problems)
}
