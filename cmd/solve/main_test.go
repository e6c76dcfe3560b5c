package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunSolves(t *testing.T) {
	var out, errOut bytes.Buffer
	req := `{"time_matrix":[[0,5],[5,0]],"time_windows":[[0,100],[0,100]],"start_index":0,"end_index":1}`
	code := run("", false, false, strings.NewReader(req), &out, &errOut)
	if code != exitOK {
		t.Fatalf("exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"ordered_nodes":[0,1]`) {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestRunNoSolutionExitsZero(t *testing.T) {
	var out, errOut bytes.Buffer
	req := `{"time_matrix":[[0,5],[5,0]],"time_windows":[[0,100],[0,1]],"end_index":1}`
	if code := run("", false, false, strings.NewReader(req), &out, &errOut); code != exitOK {
		t.Fatalf("exit %d", code)
	}
	if strings.TrimSpace(out.String()) != `{"error":"no_solution"}` {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestRunMalformedExitsTwo(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run("", false, false, strings.NewReader(`{"time_matrix":[[0]]}`), &out, &errOut); code != exitBadInput {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out.String(), `"error":"bad_request"`) {
		t.Fatalf("unexpected output %s", out.String())
	}
	out.Reset()
	if code := run("", true, false, strings.NewReader(`{"stops":[]}`), &out, &errOut); code != exitBadInput {
		t.Fatalf("stops exit %d", code)
	}
}

func TestRunStops(t *testing.T) {
	var out, errOut bytes.Buffer
	req := `{"stops":[{"id":"depot"},{"id":"a","time_restriction":"09:00"},{"id":"b"}],"time_matrix":[[0,600,900],[600,0,300],[900,300,0]],"end_index":2}`
	if code := run("", true, false, strings.NewReader(req), &out, &errOut); code != exitOK {
		t.Fatalf("exit %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"latest_departure_time":"08:50"`) {
		t.Fatalf("unexpected output %s", out.String())
	}
}
