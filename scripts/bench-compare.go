//go:build ignore

// Compares two `go test -bench` output files and flags regressions.
//
// Usage:
//
//	go test -bench=. -benchmem ./internal/search > current.txt
//	go run scripts/bench-compare.go current.txt baseline.txt
//
// A benchmark more than -threshold slower than its baseline (20% by
// default) counts as a regression; with -fail the tool exits nonzero so
// CI can gate on it.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"text/tabwriter"
)

var (
	outputJSON = flag.Bool("json", false, "Emit the report as JSON")
	threshold  = flag.Float64("threshold", 0.20, "Slowdown fraction that counts as a regression")
	showAll    = flag.Bool("all", false, "List unchanged benchmarks too")
	failOnSlow = flag.Bool("fail", true, "Exit 1 when a regression is found")
)

// benchLine matches: BenchmarkName-N  iterations  ns/op  [B/op]  [allocs/op]
var benchLine = regexp.MustCompile(`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+(\d+)\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`)

type measurement struct {
	Name        string  `json:"name"`
	NsPerOp     float64 `json:"ns_per_op"`
	BytesPerOp  int64   `json:"bytes_per_op,omitempty"`
	AllocsPerOp int64   `json:"allocs_per_op,omitempty"`
}

type delta struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current_ns_per_op"`
	Baseline float64 `json:"baseline_ns_per_op,omitempty"`
	Percent  float64 `json:"delta_percent"`
	Status   string  `json:"status"` // ok, slower, faster, new, missing
}

type report struct {
	Compared    int      `json:"compared"`
	Regressions int      `json:"regressions"`
	Deltas      []*delta `json:"deltas"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	rep := compare(current, baseline)

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(rep)
	}

	if *failOnSlow && rep.Regressions > 0 {
		os.Exit(1)
	}
}

func parseFile(path string) (map[string]*measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]*measurement)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := benchLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ns, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		meas := &measurement{Name: m[1], NsPerOp: ns}
		if m[4] != "" {
			meas.BytesPerOp, _ = strconv.ParseInt(m[4], 10, 64)
		}
		if m[5] != "" {
			meas.AllocsPerOp, _ = strconv.ParseInt(m[5], 10, 64)
		}
		out[meas.Name] = meas
	}
	return out, sc.Err()
}

func compare(current, baseline map[string]*measurement) *report {
	rep := &report{}

	for name, curr := range current {
		base, ok := baseline[name]
		if !ok {
			rep.Deltas = append(rep.Deltas, &delta{Name: name, Current: curr.NsPerOp, Status: "new"})
			continue
		}

		rep.Compared++
		d := &delta{Name: name, Current: curr.NsPerOp, Baseline: base.NsPerOp}
		if base.NsPerOp > 0 {
			d.Percent = (curr.NsPerOp - base.NsPerOp) / base.NsPerOp * 100
		}

		switch {
		case d.Percent > *threshold*100:
			d.Status = "slower"
			rep.Regressions++
		case d.Percent < -10:
			d.Status = "faster"
		default:
			d.Status = "ok"
		}
		rep.Deltas = append(rep.Deltas, d)
	}

	for name, base := range baseline {
		if _, ok := current[name]; !ok {
			rep.Deltas = append(rep.Deltas, &delta{Name: name, Baseline: base.NsPerOp, Status: "missing"})
		}
	}

	sort.Slice(rep.Deltas, func(i, j int) bool { return rep.Deltas[i].Name < rep.Deltas[j].Name })
	return rep
}

func printReport(rep *report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BENCHMARK\tCURRENT\tBASELINE\tDELTA\tSTATUS")
	for _, d := range rep.Deltas {
		if d.Status == "ok" && !*showAll {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%+.1f%%\t%s\n",
			d.Name, formatNs(d.Current), formatNs(d.Baseline), d.Percent, d.Status)
	}
	w.Flush()

	fmt.Printf("\n%d compared, %d regression(s) above %.0f%%\n",
		rep.Compared, rep.Regressions, *threshold*100)
}

func formatNs(ns float64) string {
	if ns == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f ns", ns)
}
