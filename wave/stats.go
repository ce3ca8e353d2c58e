package wave

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/wavedma/wavedma/memutils"
)

// CalculateStatistics sums the registry's entries into stats
func (e *Engine) CalculateStatistics(stats *memutils.DetailedStatistics) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	stats.Clear()
	e.stack.AddDetailedStatistics(stats)
}

// BuildStatsString returns a json document describing the staged train and the wave registry.
// If detailed is true, every registry entry is listed.
func (e *Engine) BuildStatsString(detailed bool) string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	e.stack.AddDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	root := writer.Object()

	staging := root.Name("Staging").Object()
	writeUsage(staging, "Micros", e.stats.Micros)
	writeUsage(staging, "Pulses", e.stats.Pulses)
	writeUsage(staging, "ControlBlocks", e.stats.ControlBlocks)
	staging.End()

	total := root.Name("Total").Object()
	total.Name("EntryCount").Int(stats.EntryCount)
	total.Name("AllocationCount").Int(stats.AllocationCount)
	total.Name("DescriptorCount").Int(stats.DescriptorCount)
	total.Name("WordCount").Int(stats.WordCount)
	total.Name("ReservedRangeCount").Int(stats.ReservedRangeCount)
	total.Name("ReservedDescriptors").Int(stats.ReservedDescriptors)
	if stats.AllocationCount > 0 {
		total.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		total.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.ReservedRangeCount > 0 {
		total.Name("ReservedRangeSizeMin").Int(stats.ReservedRangeSizeMin)
		total.Name("ReservedRangeSizeMax").Int(stats.ReservedRangeSizeMax)
	}
	total.End()

	if detailed {
		registry := root.Name("Registry").Object()
		e.stack.BlockJsonData(registry)
		registry.End()
	}

	root.End()
	return string(writer.Bytes())
}

func writeUsage(json jwriter.ObjectState, name string, usage memutils.Usage) {
	obj := json.Name(name).Object()
	defer obj.End()

	obj.Name("Current").Int(usage.Current)
	obj.Name("High").Int(usage.High)
	obj.Name("Max").Int(usage.Max)
}
