package slots

import (
	"fmt"
	"sort"
	"time"

	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/utils"

	"github.com/teambition/rrule-go"
)

var isoWeekdays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// weeklyDates lists the dates in [from,to] falling on an ISO weekday.
func weeklyDates(from, to time.Time, dayOfWeek int) ([]time.Time, error) {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return nil, fmt.Errorf("day of week %d out of range", dayOfWeek)
	}
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   from,
		Until:     to,
		Byweekday: []rrule.Weekday{isoWeekdays[dayOfWeek-1]},
	})
	if err != nil {
		return nil, err
	}
	return rule.All(), nil
}

type slotKey struct {
	date   string
	minute int
}

// Aggregate merges the weekly windows of the given volunteers into per-day
// one-hour slots for [from,to] and marks occupancy against feed, the
// village's reservations over the same range. windows must only contain
// eligible volunteers. Every day of the range is present in the result, with
// an empty slot list when nobody is available.
func Aggregate(from, to time.Time, windows map[string][]availability.Window, feed []reservation.Reservation, now time.Time, loc *time.Location) ([]Day, error) {
	datesByDay := map[int][]time.Time{}
	contributors := map[slotKey]map[string]bool{}

	for volunteerID, ws := range windows {
		for _, w := range ws {
			start, end, err := w.Span()
			if err != nil {
				continue
			}
			dates, ok := datesByDay[w.DayOfWeek]
			if !ok {
				if dates, err = weeklyDates(from, to, w.DayOfWeek); err != nil {
					continue
				}
				datesByDay[w.DayOfWeek] = dates
			}
			for _, d := range dates {
				date := d.Format(utils.DateLayout)
				for m := start; m+reservation.SlotMinutes <= end; m += reservation.SlotMinutes {
					k := slotKey{date, m}
					if contributors[k] == nil {
						contributors[k] = map[string]bool{}
					}
					contributors[k][volunteerID] = true
				}
			}
		}
	}

	byDate := map[string][]Slot{}
	for k, ids := range contributors {
		s := buildSlot(k, ids, feed, now, loc)
		byDate[k.date] = append(byDate[k.date], s)
	}

	var days []Day
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format(utils.DateLayout)
		list := byDate[date]
		if list == nil {
			list = []Slot{}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Time < list[j].Time })
		days = append(days, Day{Date: date, DayIndex: utils.ISOWeekday(d), Slots: list})
	}
	return days, nil
}

func buildSlot(k slotKey, ids map[string]bool, feed []reservation.Reservation, now time.Time, loc *time.Location) Slot {
	d, _ := utils.ParseDate(k.date)
	s := Slot{
		Date:             k.date,
		DayIndex:         utils.ISOWeekday(d),
		Time:             utils.FormatClock(k.minute),
		VolunteerIDs:     make([]string, 0, len(ids)),
		FreeVolunteerIDs: []string{},
	}
	for id := range ids {
		s.VolunteerIDs = append(s.VolunteerIDs, id)
	}
	sort.Strings(s.VolunteerIDs)

	for _, id := range s.VolunteerIDs {
		if !reservation.Occupied(id, k.date, k.minute, feed, now, loc) {
			s.FreeVolunteerIDs = append(s.FreeVolunteerIDs, id)
		}
	}
	s.Reserved = len(s.FreeVolunteerIDs) == 0

	startsAt, err := utils.At(k.date, k.minute, loc)
	s.Bookable = err == nil && !s.Reserved && now.Before(startsAt)
	return s
}

// PickVolunteer chooses who serves a booking of slot when the client did not
// name a volunteer: the free contributor with the fewest occupying
// reservations that day, lowest id on ties. The result is stable across
// refreshes as long as the feed does not change.
func PickVolunteer(slot Slot, feed []reservation.Reservation, now time.Time, loc *time.Location) (string, bool) {
	if len(slot.FreeVolunteerIDs) == 0 {
		return "", false
	}
	load := map[string]int{}
	for _, r := range feed {
		if r.ReservationDate == slot.Date && reservation.Occupies(r, now, loc) {
			load[r.VolunteerID]++
		}
	}
	best := ""
	for _, id := range slot.FreeVolunteerIDs {
		if best == "" || load[id] < load[best] || (load[id] == load[best] && id < best) {
			best = id
		}
	}
	return best, true
}
