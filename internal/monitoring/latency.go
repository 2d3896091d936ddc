// internal/monitoring/latency.go
package monitoring

import (
    "math"
    "regexp"
    "strconv"
)

// latencyPattern matches the round trip marker printed by ping:
//
//    time=<number>ms    time=<number> ms    time<<number>ms
//
// where <number> is a decimal such as 12, 0.045 or 1.5.
var latencyPattern = regexp.MustCompile(`time[<=]([0-9.]+)\s*ms`)

// ParseLatency extracts the round trip time in whole milliseconds from ping
// output. ok is false when the output carries no latency marker.
func ParseLatency(output string) (ms int, ok bool) {
    matches := latencyPattern.FindStringSubmatch(output)
    if len(matches) < 2 {
        return 0, false
    }

    value, err := strconv.ParseFloat(matches[1], 64)
    if err != nil || value < 0 {
        return 0, false
    }
    return int(math.Round(value)), true
}
