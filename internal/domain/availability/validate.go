package availability

import (
	"fmt"
	"sort"

	"villagewalks/backend/internal/utils"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateWindows rejects malformed, non-hour-aligned, empty or overlapping
// windows. It runs on write only.
func ValidateWindows(in SetAvailabilityInput) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	type span struct{ start, end int }
	byDay := map[int][]span{}

	for i, w := range in.Windows {
		start, err := utils.ParseClock(w.StartTime)
		if err != nil {
			return fmt.Errorf("%w: window %d: startTime must be HH:MM", ErrBadRequest, i)
		}
		end, err := utils.ParseClock(w.EndTime)
		if err != nil {
			return fmt.Errorf("%w: window %d: endTime must be HH:MM", ErrBadRequest, i)
		}
		if start%60 != 0 || end%60 != 0 {
			return fmt.Errorf("%w: window %d: times must be on the hour", ErrBadRequest, i)
		}
		if end <= start {
			return fmt.Errorf("%w: window %d: endTime must be after startTime", ErrBadRequest, i)
		}
		byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], span{start, end})
	}

	for day, spans := range byDay {
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		for i := 1; i < len(spans); i++ {
			if utils.Overlaps(spans[i-1].start, spans[i-1].end, spans[i].start, spans[i].end) {
				return fmt.Errorf("%w: overlapping windows on day %d", ErrBadRequest, day)
			}
		}
	}
	return nil
}
