package orders

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const statsSeparator = "--------------------------------"

// RenderPnLChart renders a horizontal ASCII bar chart of PnL values, largest
// first, followed by summary statistics. Bars scale to the largest magnitude
// within an 80-column budget.
func RenderPnLChart(pnl map[string]float64) string {
	if len(pnl) == 0 {
		return ""
	}

	type entry struct {
		symbol string
		value  float64
	}
	entries := make([]entry, 0, len(pnl))
	for sym, v := range pnl {
		entries = append(entries, entry{sym, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value > entries[j].value
		}
		return entries[i].symbol < entries[j].symbol
	})

	labels := make([]string, len(entries))
	magnitudes := make([]float64, len(entries))
	maxLabelLen := 0
	maxMagnitude := 0.0
	for i, e := range entries {
		labels[i] = fmt.Sprintf("%03d. %s (%s)", i+1, e.symbol, formatCommas(e.value))
		if len(labels[i]) > maxLabelLen {
			maxLabelLen = len(labels[i])
		}
		magnitudes[i] = math.Abs(e.value)
		if magnitudes[i] > maxMagnitude {
			maxMagnitude = magnitudes[i]
		}
	}

	var lines []string
	if maxMagnitude == 0 {
		for _, label := range labels {
			lines = append(lines, fmt.Sprintf("%*s", maxLabelLen, label))
		}
		return strings.Join(lines, "\n")
	}

	width := 80 - maxLabelLen - 1
	if width < 10 {
		width = 10
	}
	for i, label := range labels {
		n := int(math.Round(magnitudes[i] / maxMagnitude * float64(width)))
		lines = append(lines, fmt.Sprintf("%*s %s", maxLabelLen, label, strings.Repeat("=", n)))
	}

	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.value
	}
	lines = append(lines, statsSeparator)
	lines = append(lines, fmt.Sprintf("Total: %s", formatCommas(sum(values))))
	lines = append(lines, fmt.Sprintf("Average: %s", formatCommas(sum(values)/float64(len(values)))))
	lines = append(lines, fmt.Sprintf("Median: %s", formatCommas(median(values))))
	lines = append(lines, fmt.Sprintf("Mode: %s", formatCommas(mode(values))))
	lines = append(lines, fmt.Sprintf("Range: %s - %s", formatCommas(minOf(values)), formatCommas(maxOf(values))))
	lines = append(lines, fmt.Sprintf("Standard Deviation: %s", formatCommas(stdev(values))))
	lines = append(lines, statsSeparator)
	return strings.Join(lines, "\n")
}

// formatCommas renders a value with two decimals and thousands separators.
func formatCommas(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	intPart, fracPart := s[:dot], s[dot:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	b.WriteString(fracPart)
	return b.String()
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// median of the sorted values, upper element for even counts.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

// mode is the most frequent value; ties resolve to the smallest.
func mode(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	counts := make(map[float64]int, len(sorted))
	for _, v := range sorted {
		counts[v]++
	}
	best := sorted[0]
	for _, v := range sorted {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// stdev is the sample standard deviation, 0 when fewer than two values.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := sum(values) / float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
