// Package testinfra generates synthetic hotel booking data for tests.
package testinfra

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BookingColumns is the header of the hotel reservations dataset.
var BookingColumns = []string{
	"Booking_ID",
	"no_of_adults",
	"no_of_children",
	"no_of_weekend_nights",
	"no_of_week_nights",
	"type_of_meal_plan",
	"required_car_parking_space",
	"room_type_reserved",
	"lead_time",
	"arrival_year",
	"arrival_month",
	"arrival_date",
	"market_segment_type",
	"repeated_guest",
	"no_of_previous_cancellations",
	"no_of_previous_bookings_not_canceled",
	"avg_price_per_room",
	"no_of_special_requests",
	"booking_status",
}

var (
	mealPlans = []string{"Meal Plan 1", "Meal Plan 2", "Not Selected"}
	roomTypes = []string{"Room_Type 1", "Room_Type 2", "Room_Type 4", "Room_Type 6"}
	segments  = []string{"Online", "Offline", "Corporate", "Complementary"}
	monthDays = []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

// Bookings returns n synthetic rows as CSV. Cancellation mostly follows a
// long lead time without special requests, so a model can learn it. Roughly
// a third of the rows are cancelled.
func Bookings(n int, seed uint64) string {
	r := rand.New(rand.NewPCG(seed, seed))
	var b strings.Builder
	b.WriteString(strings.Join(BookingColumns, ",") + "\n")

	for i := 0; i < n; i++ {
		lead := r.IntN(300)
		requests := r.IntN(4)
		month := 1 + r.IntN(12)
		day := 1 + r.IntN(monthDays[month-1])
		price := 50 + r.Float64()*150
		segment := segments[r.IntN(len(segments))]

		risk := float64(lead)/300 - 0.3*float64(requests) + (r.Float64()-0.5)*0.3
		if segment == "Online" {
			risk += 0.1
		}
		status := "Not_Canceled"
		if risk > 0.35 {
			status = "Canceled"
		}

		prevCancel := 0
		if r.IntN(50) == 0 {
			prevCancel = 1 + r.IntN(10)
		}

		row := []string{
			"INN" + strconv.Itoa(100000+i),
			strconv.Itoa(1 + r.IntN(3)),
			strconv.Itoa(r.IntN(2)),
			strconv.Itoa(r.IntN(3)),
			strconv.Itoa(r.IntN(6)),
			mealPlans[r.IntN(len(mealPlans))],
			strconv.Itoa(r.IntN(2)),
			roomTypes[r.IntN(len(roomTypes))],
			strconv.Itoa(lead),
			strconv.Itoa(2017 + r.IntN(2)),
			strconv.Itoa(month),
			strconv.Itoa(day),
			segment,
			strconv.Itoa(r.IntN(2)),
			strconv.Itoa(prevCancel),
			strconv.Itoa(r.IntN(3)),
			strconv.FormatFloat(price, 'f', 2, 64),
			strconv.Itoa(requests),
			status,
		}
		b.WriteString(strings.Join(row, ",") + "\n")
	}
	return b.String()
}

// WriteBookings writes Bookings(n, seed) to dir/name and returns the path.
func WriteBookings(dir, name string, n int, seed uint64) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(Bookings(n, seed)), 0o600)
}
