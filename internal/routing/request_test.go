package routing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) (Problem, error) {
	t.Helper()
	return DecodeRequest(strings.NewReader(body))
}

func TestDecodeRequest(t *testing.T) {
	p, err := decode(t, `{
		"time_matrix": [[0, 5.9, 3], [5, 0, 2], [3, 2, 0]],
		"time_windows": [[0, 100], [10, 50], [0, 100]],
		"service_times": [1, 2, 3],
		"end_index": 2
	}`)
	require.NoError(t, err)
	require.Equal(t, 0, p.StartIndex)
	require.Equal(t, 2, p.EndIndex)
	require.Equal(t, int64(5), p.TimeMatrix[0][1])
	require.Equal(t, Window{Earliest: 10, Latest: 50}, p.TimeWindows[1])
	require.Equal(t, []int64{1, 2, 3}, p.ServiceTimes)
}

func TestDecodeRequestServiceTimesFallback(t *testing.T) {
	base := `"time_matrix": [[0, 1], [1, 0]], "time_windows": [[0, 9], [0, 9]], "end_index": 1`
	for name, svc := range map[string]string{
		"absent":       ``,
		"null":         `, "service_times": null`,
		"wrong length": `, "service_times": [1, 2, 3]`,
		"not a list":   `, "service_times": 7`,
		"not numbers":  `, "service_times": ["a", "b"]`,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := decode(t, `{`+base+svc+`}`)
			require.NoError(t, err)
			require.Equal(t, []int64{0, 0}, p.ServiceTimes)
		})
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"missing matrix":   {`{"time_windows": [[0, 1]], "end_index": 0}`, "time_matrix"},
		"missing windows":  {`{"time_matrix": [[0]], "end_index": 0}`, "time_windows"},
		"missing end":      {`{"time_matrix": [[0]], "time_windows": [[0, 1]]}`, "end_index"},
		"matrix type":      {`{"time_matrix": "abc", "time_windows": [[0, 1]], "end_index": 0}`, "time_matrix"},
		"window arity":     {`{"time_matrix": [[0]], "time_windows": [[0, 1, 2]], "end_index": 0}`, "time_windows"},
		"window type":      {`{"time_matrix": [[0]], "time_windows": [["a", 1]], "end_index": 0}`, "time_windows"},
		"end type":         {`{"time_matrix": [[0]], "time_windows": [[0, 1]], "end_index": "0"}`, "end_index"},
		"size mismatch":    {`{"time_matrix": [[0,1,1],[1,0,1],[1,1,0]], "time_windows": [[0,9],[0,9]], "end_index": 1}`, "time_matrix"},
		"ragged matrix":    {`{"time_matrix": [[0,1],[1]], "time_windows": [[0,9],[0,9]], "end_index": 1}`, "time_matrix"},
		"negative travel":  {`{"time_matrix": [[0,-1],[1,0]], "time_windows": [[0,9],[0,9]], "end_index": 1}`, "time_matrix"},
		"start range":      {`{"time_matrix": [[0,1],[1,0]], "time_windows": [[0,9],[0,9]], "start_index": 2, "end_index": 1}`, "start_index"},
		"end range":        {`{"time_matrix": [[0,1],[1,0]], "time_windows": [[0,9],[0,9]], "end_index": -1}`, "end_index"},
		"empty":            {`{"time_matrix": [], "time_windows": [], "end_index": 0}`, "time_windows"},
		"negative service": {`{"time_matrix": [[0,1],[1,0]], "time_windows": [[0,9],[0,9]], "service_times": [-1, 0], "end_index": 1}`, "service_times"},
		"not json":         {`{"time_matrix":`, ""},
		"two objects":      {`{} {}`, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, tc.body)
			require.ErrorIs(t, err, ErrMalformedRequest)
			var re *RequestError
			require.ErrorAs(t, err, &re)
			require.Equal(t, tc.field, re.Field)
		})
	}
}
