package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRestriction(t *testing.T) {
	w, err := ParseRestriction("09:30", RestrictBefore)
	require.NoError(t, err)
	require.Equal(t, Window{Earliest: 0, Latest: 34200}, w)

	w, err = ParseRestriction("09:30", "")
	require.NoError(t, err)
	require.Equal(t, Window{Earliest: 0, Latest: 34200}, w)

	w, err = ParseRestriction("17:05", RestrictAfter)
	require.NoError(t, err)
	require.Equal(t, Window{Earliest: 61500, Latest: Horizon}, w)

	for _, bad := range []string{"0930", "25:00", "10:60", "ab:cd", ""} {
		_, err := ParseRestriction(bad, RestrictBefore)
		require.ErrorIs(t, err, ErrMalformedRequest, bad)
	}
	_, err = ParseRestriction("10:00", "during")
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestFormatClock(t *testing.T) {
	require.Equal(t, "00:00", FormatClock(0))
	require.Equal(t, "09:50", FormatClock(35400))
	require.Equal(t, "23:59", FormatClock(86399))
	require.Equal(t, "00:00", FormatClock(-30))
}

func TestLatestDeparture(t *testing.T) {
	sr := StopsRequest{Stops: []Stop{
		{ID: "depot"},
		{ID: "a", TimeRestriction: "10:00"},
		{ID: "b"},
		{ID: "c", TimeRestriction: "11:07", TimeRestrictionType: RestrictBefore},
		{ID: "end"},
	}}
	p := Problem{
		TimeWindows: windows(
			[2]int64{0, Horizon},
			[2]int64{0, 36000},
			[2]int64{0, Horizon},
			[2]int64{0, 40020},
			[2]int64{0, Horizon},
		),
		EndIndex: 4,
	}
	r := Result{
		Status:       StatusSolved,
		OrderedNodes: []int{0, 1, 2, 3, 4},
		Arrivals:     map[string]int64{"0": 1000, "1": 1600, "2": 2000, "3": 5000, "4": 6000},
		Departure:    1000,
	}
	// a allows 36000-600, c allows 40020-4000
	clock, ok := sr.LatestDeparture(p, r)
	require.True(t, ok)
	require.Equal(t, "09:50", clock)

	sr.Stops[1].TimeRestriction = "00:05"
	p.TimeWindows[1].Latest = 300
	clock, ok = sr.LatestDeparture(p, r)
	require.True(t, ok)
	require.Equal(t, "00:00", clock)

	sr.Stops[1].TimeRestrictionType = RestrictAfter
	sr.Stops[3].TimeRestrictionType = RestrictAfter
	_, ok = sr.LatestDeparture(p, r)
	require.False(t, ok)

	// a 24:00 deadline still counts although its window spans the day
	sr.Stops[2].TimeRestriction = "24:00"
	p.TimeWindows[2] = Window{Earliest: 0, Latest: Horizon}
	clock, ok = sr.LatestDeparture(p, r)
	require.True(t, ok)
	require.Equal(t, "23:43", clock)

	_, ok = sr.LatestDeparture(p, Result{Status: StatusNoSolution})
	require.False(t, ok)
}

func TestStopsRequest(t *testing.T) {
	three := [][]int64{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}}

	_, err := StopsRequest{
		Stops:      []Stop{{ID: "a"}, {ID: "b"}},
		TimeMatrix: [][]int64{{0, 1}, {1, 0}},
	}.Problem()
	require.ErrorIs(t, err, ErrMalformedRequest)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, "stops", re.Field)

	_, err = StopsRequest{
		Stops:      []Stop{{ID: "a"}, {ID: "b"}, {ID: "a"}},
		TimeMatrix: three,
	}.Problem()
	require.ErrorIs(t, err, ErrMalformedRequest)

	_, err = StopsRequest{
		Stops:      []Stop{{ID: "a"}, {ID: "b", TimeRestriction: "nine"}, {ID: "c"}},
		TimeMatrix: three,
	}.Problem()
	require.ErrorIs(t, err, ErrMalformedRequest)

	p, err := StopsRequest{
		Stops:      []Stop{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		TimeMatrix: three,
	}.Problem()
	require.NoError(t, err)
	require.Equal(t, 0, p.EndIndex)
}

func TestSolveStops(t *testing.T) {
	end := 2
	sr := StopsRequest{
		Stops: []Stop{
			{ID: "depot"},
			{ID: "bakery", TimeRestriction: "08:00", ServiceTime: 120},
			{ID: "office", TimeRestriction: "07:00", TimeRestrictionType: RestrictAfter},
		},
		TimeMatrix: [][]int64{
			{0, 600, 900},
			{600, 0, 300},
			{900, 300, 0},
		},
		EndIndex: &end,
	}
	p, err := sr.Problem()
	require.NoError(t, err)
	require.Equal(t, Window{Earliest: 0, Latest: 28800}, p.TimeWindows[1])
	require.Equal(t, Window{Earliest: 25200, Latest: Horizon}, p.TimeWindows[2])

	r, err := testSolver().Solve(context.Background(), p)
	require.NoError(t, err)
	requireValidRoute(t, p, r)

	resp := sr.Response(p, r)
	require.Equal(t, []string{"depot", "bakery", "office"}, resp.OrderedStopIDs)
	require.Len(t, resp.Arrivals, 3)
	require.NotNil(t, resp.LatestDepartureTime)
	// 08:00 minus the 10 minute drive to the bakery
	require.Equal(t, "07:50", *resp.LatestDepartureTime)
}
