package earnings

import "time"

func d(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

// DefaultCalendar returns the hand-curated Apple reports for 2020 through 2023.
func DefaultCalendar() Calendar {
	return Calendar{
		"AAPL": {
			{Date: d("2020-01-28"), ActualEPS: 4.99, EPSEstimate: 4.54},
			{Date: d("2020-04-30"), ActualEPS: 2.55, EPSEstimate: 2.26},
			{Date: d("2020-07-30"), ActualEPS: 2.58, EPSEstimate: 2.07},
			{Date: d("2020-10-29"), ActualEPS: 0.73, EPSEstimate: 0.70},
			{Date: d("2021-01-27"), ActualEPS: 1.68, EPSEstimate: 1.41},
			{Date: d("2021-04-28"), ActualEPS: 1.40, EPSEstimate: 0.99},
			{Date: d("2021-07-27"), ActualEPS: 1.30, EPSEstimate: 1.01},
			{Date: d("2021-10-28"), ActualEPS: 1.24, EPSEstimate: 1.24},
			{Date: d("2022-01-27"), ActualEPS: 2.10, EPSEstimate: 1.89},
			{Date: d("2022-04-28"), ActualEPS: 1.52, EPSEstimate: 1.43},
			{Date: d("2022-07-28"), ActualEPS: 1.20, EPSEstimate: 1.16},
			{Date: d("2022-10-27"), ActualEPS: 1.29, EPSEstimate: 1.27},
			{Date: d("2023-02-02"), ActualEPS: 1.88, EPSEstimate: 1.94},
			{Date: d("2023-05-04"), ActualEPS: 1.52, EPSEstimate: 1.43},
			{Date: d("2023-08-03"), ActualEPS: 1.26, EPSEstimate: 1.19},
		},
	}
}
