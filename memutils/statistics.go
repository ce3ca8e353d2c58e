package memutils

import "math"

// Usage tracks a current value alongside the highest value it has reached and the capacity it
// may never exceed
type Usage struct {
	Current int
	High    int
	Max     int
}

// Set records a new current value, raising the high-water mark if needed
func (u *Usage) Set(value int) {
	u.Current = value
	if value > u.High {
		u.High = value
	}
}

// Reset zeroes the current value. The high-water mark and capacity survive.
func (u *Usage) Reset() {
	u.Current = 0
}

type Statistics struct {
	EntryCount      int
	AllocationCount int
	DescriptorCount int
	WordCount       int
}

func (s *Statistics) Clear() {
	s.EntryCount = 0
	s.AllocationCount = 0
	s.DescriptorCount = 0
	s.WordCount = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.EntryCount += other.EntryCount
	s.AllocationCount += other.AllocationCount
	s.DescriptorCount += other.DescriptorCount
	s.WordCount += other.WordCount
}

// DetailedStatistics extends Statistics with the shape of live allocations and of reserved ranges:
// entries that were released but still occupy stack space because something above them is live.
type DetailedStatistics struct {
	Statistics
	ReservedRangeCount   int
	ReservedDescriptors  int
	AllocationSizeMin    int
	AllocationSizeMax    int
	ReservedRangeSizeMin int
	ReservedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.ReservedRangeCount = 0
	s.ReservedDescriptors = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.ReservedRangeSizeMin = math.MaxInt
	s.ReservedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddReservedRange(descriptors int) {
	s.EntryCount++
	s.ReservedRangeCount++
	s.ReservedDescriptors += descriptors

	if descriptors < s.ReservedRangeSizeMin {
		s.ReservedRangeSizeMin = descriptors
	}

	if descriptors > s.ReservedRangeSizeMax {
		s.ReservedRangeSizeMax = descriptors
	}
}

func (s *DetailedStatistics) AddAllocation(descriptors, words int) {
	s.EntryCount++
	s.AllocationCount++
	s.DescriptorCount += descriptors
	s.WordCount += words

	if descriptors < s.AllocationSizeMin {
		s.AllocationSizeMin = descriptors
	}

	if descriptors > s.AllocationSizeMax {
		s.AllocationSizeMax = descriptors
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.ReservedRangeCount += other.ReservedRangeCount
	s.ReservedDescriptors += other.ReservedDescriptors

	if other.ReservedRangeSizeMin < s.ReservedRangeSizeMin {
		s.ReservedRangeSizeMin = other.ReservedRangeSizeMin
	}

	if other.ReservedRangeSizeMax > s.ReservedRangeSizeMax {
		s.ReservedRangeSizeMax = other.ReservedRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}
