// Command solve reads one solve request as JSON and prints the route, or
// {"error":"no_solution"}, on stdout.
//
//	solve [-in request.json] [-stops] [-sysinfo]
//
// Exit status is 0 for a route or no_solution, 2 for a malformed request and
// 1 for anything else.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"routesolver/internal/obs"
	"routesolver/internal/routing"
)

const (
	exitOK       = 0
	exitInternal = 1
	exitBadInput = 2
)

// SysInfo describes the machine a solve ran on.
type SysInfo struct {
	Platform string `json:"platform"`
	CPU      string `json:"cpu"`
	RAM      string `json:"ram"`
}

type report struct {
	Status     string   `json:"status"`
	DurationMs int64    `json:"durationMs"`
	Cost       int64    `json:"cost"`
	Stats      any      `json:"stats"`
	System     *SysInfo `json:"system,omitempty"`
}

func main() {
	in := flag.String("in", "", "request file (default stdin)")
	stops := flag.Bool("stops", false, "read a stops request (HH:mm restrictions) instead of raw windows")
	sysinfo := flag.Bool("sysinfo", false, "write a run report with host details to stderr")
	flag.Parse()
	log.SetFlags(0)
	os.Exit(run(*in, *stops, *sysinfo, os.Stdin, os.Stdout, os.Stderr))
}

func run(in string, stops, sysinfo bool, stdin io.Reader, stdout, stderr io.Writer) int {
	src := stdin
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			fmt.Fprintf(stderr, "solve: %v\n", err)
			return exitInternal
		}
		defer f.Close()
		src = f
	}
	body, err := io.ReadAll(src)
	if err != nil {
		fmt.Fprintf(stderr, "solve: read: %v\n", err)
		return exitInternal
	}

	var (
		p      routing.Problem
		render func(routing.Result) any
	)
	if stops {
		var sr routing.StopsRequest
		if err = json.Unmarshal(body, &sr); err != nil {
			err = &routing.RequestError{Reason: "invalid JSON: " + err.Error()}
		} else {
			p, err = sr.Problem()
		}
		render = func(r routing.Result) any {
			if r.Status != routing.StatusSolved {
				return r
			}
			return sr.Response(p, r)
		}
	} else {
		p, err = routing.DecodeRequest(bytes.NewReader(body))
		render = func(r routing.Result) any { return r }
	}
	if err != nil {
		return fail(stdout, stderr, err)
	}

	ctx, _ := obs.WithRequestID(context.Background(), "")
	start := time.Now()
	res, err := solve(ctx, p)
	if err != nil {
		return fail(stdout, stderr, err)
	}
	enc := json.NewEncoder(stdout)
	if err := enc.Encode(render(res)); err != nil {
		fmt.Fprintf(stderr, "solve: write: %v\n", err)
		return exitInternal
	}
	if sysinfo {
		rep := report{Status: res.Status.String(), DurationMs: time.Since(start).Milliseconds(), Cost: res.Cost, Stats: res.Stats, System: systemInfo()}
		out, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Fprintln(stderr, string(out))
	}
	return exitOK
}

func solve(ctx context.Context, p routing.Problem) (res routing.Result, err error) {
	defer obs.Time(ctx, "routing.solve")(&err)
	return routing.Solve(ctx, p)
}

func fail(stdout, stderr io.Writer, err error) int {
	if errors.Is(err, routing.ErrMalformedRequest) {
		_ = json.NewEncoder(stdout).Encode(map[string]string{"error": "bad_request", "message": err.Error()})
		return exitBadInput
	}
	_ = json.NewEncoder(stdout).Encode(map[string]string{"error": "internal", "message": err.Error()})
	fmt.Fprintf(stderr, "solve: %v\n", err)
	return exitInternal
}

func systemInfo() *SysInfo {
	info := &SysInfo{}
	if h, err := host.Info(); err == nil {
		info.Platform = h.Platform
	}
	if c, err := cpu.Info(); err == nil && len(c) > 0 {
		info.CPU = c[0].ModelName
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.RAM = fmt.Sprintf("%d GB", vm.Total/1024/1024/1024)
	}
	return info
}
