// Command crontime prints the next instant a cron-style schedule
// admits at or after a given reference instant, with bounded random
// jitter added to avoid a thundering herd of callers all waking at the
// exact same second.
//
// Usage:
//
//	crontime [-j N | --jitter N] <epoch-seconds> [<schedule>]
//
// If <schedule> is omitted, one schedule is read per line from standard
// input; for each, the resulting epoch-second is printed on its own
// line. A malformed schedule is reported on stderr and the command
// exits non-zero, but other lines are still processed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/earlchew/crontime"
	"github.com/earlchew/crontime/schedule"
	"github.com/earlchew/crontime/tzoracle"
)

const (
	defaultJitter = 300
	minJitter     = 0
	maxJitter     = 86400
)

func main() {
	var jitterSeconds int64
	flag.Int64Var(&jitterSeconds, "jitter", defaultJitter, "maximum jitter in seconds, range [0,86400]")
	flag.Int64Var(&jitterSeconds, "j", defaultJitter, "shorthand for -jitter")
	flag.Parse()

	if jitterSeconds < minJitter || jitterSeconds > maxJitter {
		fmt.Fprintf(os.Stderr, "crontime: jitter %d outside [%d,%d]\n", jitterSeconds, minJitter, maxJitter)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, "Usage: crontime [-j N|--jitter N] <epoch-seconds> [<schedule>]")
		os.Exit(1)
	}

	now, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crontime: invalid epoch-seconds %q: %v\n", args[0], err)
		os.Exit(1)
	}

	zone, err := tzoracle.LoadAmbient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "crontime:", err)
		os.Exit(1)
	}
	loc, err := time.LoadLocation(zone.Name())
	if err != nil {
		fmt.Fprintln(os.Stderr, "crontime:", err)
		os.Exit(1)
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if len(args) == 2 {
		if err := evalOne(zone, loc, now, jitterSeconds, r, args[1]); err != nil {
			fmt.Fprintln(os.Stderr, "crontime:", err)
			os.Exit(1)
		}
		return
	}

	if !evalStdin(zone, loc, now, jitterSeconds, r) {
		os.Exit(1)
	}
}

func evalOne(zone *tzoracle.Zone, loc *time.Location, now, jitterSeconds int64, r *rand.Rand, expr string) error {
	sched, err := schedule.New(expr)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", expr, err)
	}
	result, err := crontime.Next(sched, zone, loc, now, jitterSeconds, r)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", expr, err)
	}
	fmt.Println(result)
	return nil
}

// evalStdin reads one schedule per line from standard input and prints
// the resulting epoch-second for each, returning false if any line
// failed to parse or evaluate.
func evalStdin(zone *tzoracle.Zone, loc *time.Location, now, jitterSeconds int64, r *rand.Rand) bool {
	ok := true
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := evalOne(zone, loc, now, jitterSeconds, r, line); err != nil {
			fmt.Fprintln(os.Stderr, "crontime:", err)
			ok = false
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "crontime: reading standard input:", err)
		ok = false
	}
	return ok
}
