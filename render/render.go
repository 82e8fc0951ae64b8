// Package render converts counter snapshots into Prometheus samples and the
// Prometheus text exposition format.
//
// Rendering is pure: the same snapshot and options always produce the same
// output, and nothing is reordered.
package render

import (
	"math"
	"strconv"
	"strings"

	"github.com/nomis52/countbridge/counters"
)

// ContentType is the media type of the text exposition format.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Kind is the Prometheus metric type of a sample.
type Kind string

const (
	KindCounter Kind = "counter"
	KindGauge   Kind = "gauge"
)

// Labels identify the reporting process in rendered output.
type Labels struct {
	Job      string
	Instance string
}

// Complete reports whether both labels are known.
func (l Labels) Complete() bool {
	return l.Job != "" && l.Instance != ""
}

// Options control text rendering.
type Options struct {
	// Labels are rendered as a {job="...",instance="..."} block when complete.
	Labels Labels
	// Timestamps appends each counter's last update time in milliseconds.
	Timestamps bool
}

// Sample is a single rendered value derived from a counter.
type Sample struct {
	Name        string
	Kind        Kind
	Value       float64
	TimestampMs int64
}

// Samples expands a snapshot into samples, in snapshot order. Statistics
// counters expand into _max, _min, _average and _count samples.
//
// Sample names are unique. When two counters map to the same name, because
// one name was recorded as two types, a statistics suffix matches another
// counter or two names sanitize alike, the first sample in snapshot order is
// kept and later ones are dropped.
func Samples(snapshot counters.Snapshot) []Sample {
	samples := make([]Sample, 0, len(snapshot))
	seen := make(map[string]bool, len(snapshot))
	add := func(s Sample) {
		if seen[s.Name] {
			return
		}
		seen[s.Name] = true
		samples = append(samples, s)
	}

	for _, c := range snapshot {
		name := SanitizeName(c.Name)
		ts := c.Updated.UnixMilli()
		if c.Updated.IsZero() {
			ts = 0
		}

		switch v := c.Value.(type) {
		case counters.Count:
			add(Sample{Name: name, Kind: KindCounter, Value: v.N, TimestampMs: ts})
		case counters.Last:
			add(Sample{Name: name, Kind: KindGauge, Value: v.Value, TimestampMs: ts})
		case counters.Stamp:
			if v.Time.IsZero() {
				continue
			}
			add(Sample{Name: name, Kind: KindGauge, Value: float64(v.Time.UnixMilli()), TimestampMs: ts})
		case counters.Stats:
			if v.Count == 0 {
				continue
			}
			add(Sample{Name: name + "_max", Kind: KindGauge, Value: v.Max, TimestampMs: ts})
			add(Sample{Name: name + "_min", Kind: KindGauge, Value: v.Min, TimestampMs: ts})
			add(Sample{Name: name + "_average", Kind: KindGauge, Value: v.Average, TimestampMs: ts})
			add(Sample{Name: name + "_count", Kind: KindCounter, Value: float64(v.Count), TimestampMs: ts})
		}
	}
	return samples
}

// Text renders a snapshot in the Prometheus text exposition format.
func Text(snapshot counters.Snapshot, opts Options) string {
	samples := Samples(snapshot)
	if len(samples) == 0 {
		return ""
	}

	labels := ""
	if opts.Labels.Complete() {
		labels = `{job="` + escapeLabelValue(opts.Labels.Job) +
			`",instance="` + escapeLabelValue(opts.Labels.Instance) + `"}`
	}

	var b strings.Builder
	for _, s := range samples {
		b.WriteString("# TYPE ")
		b.WriteString(s.Name)
		b.WriteByte(' ')
		b.WriteString(string(s.Kind))
		b.WriteByte('\n')

		b.WriteString(s.Name)
		b.WriteString(labels)
		b.WriteByte(' ')
		b.WriteString(FormatValue(s.Value))
		if opts.Timestamps && s.TimestampMs != 0 {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatInt(s.TimestampMs, 10))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// SanitizeName replaces every character outside [A-Za-z0-9_] with '_'.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// FormatValue formats a sample value the way the text format expects.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		// Integral values, including millisecond timestamps, stay out of
		// exponent notation.
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

var labelValueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

func escapeLabelValue(v string) string {
	return labelValueEscaper.Replace(v)
}
