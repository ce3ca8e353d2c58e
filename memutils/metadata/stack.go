package metadata

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/wavedma/wavedma/memutils"
)

var (
	ErrDescriptorsExhausted = errors.New("not enough free descriptors")
	ErrWordsExhausted       = errors.New("not enough free out-of-line words")
	ErrEntriesExhausted     = errors.New("no free entry ids")
	ErrUnknownEntry         = errors.New("entry does not exist or was deleted")
)

// StackLimits sizes a StackMetadata. Descriptor indices run from CBBase up to CBCapacity, word
// indices run from WordBase up to WordCapacity. The space below the bases is owned by someone else.
type StackLimits struct {
	CBBase       int
	CBCapacity   int
	WordBase     int
	WordCapacity int
	MaxEntries   int
}

// StackMetadata tracks entries that live on a double stack. Descriptors and bottom words grow
// upward from the bases, top words grow downward from the word capacity, and the two word stacks
// meet in the middle.
//
// Space is only reclaimed from the top of the stack. Freeing an entry marks it deleted; if it was
// the topmost entry, every deleted entry directly beneath it is dropped too and the stack pointers
// return to where the lowest of them began. A deleted entry with live entries above it keeps its
// ranges reserved. It can be revived by a later request with exactly the same shape, but is
// otherwise dead space until everything above it is freed.
type StackMetadata struct {
	limits  StackLimits
	entries []Entry

	bottomCB  int
	bottomOOL int
	topOOL    int

	cbUsage         memutils.Usage
	bottomWordUsage memutils.Usage
	topWordUsage    memutils.Usage
}

var _ memutils.Validatable = &StackMetadata{}

// NewStackMetadata creates an empty StackMetadata
func NewStackMetadata(limits StackLimits) *StackMetadata {
	m := &StackMetadata{
		limits:  limits,
		entries: make([]Entry, 0, limits.MaxEntries),
	}
	m.cbUsage.Max = limits.CBCapacity - limits.CBBase
	m.bottomWordUsage.Max = limits.WordCapacity - limits.WordBase
	m.topWordUsage.Max = limits.WordCapacity - limits.WordBase
	m.Clear()

	return m
}

// Limits returns the limits the metadata was created with
func (m *StackMetadata) Limits() StackLimits { return m.limits }

// Count returns the number of entries on the stack, including reserved deleted entries
func (m *StackMetadata) Count() int { return len(m.entries) }

// IsEmpty returns true if the stack holds no entries at all
func (m *StackMetadata) IsEmpty() bool { return len(m.entries) == 0 }

// DescriptorUsage reports the descriptors consumed by the stack, with its high-water mark
func (m *StackMetadata) DescriptorUsage() memutils.Usage { return m.cbUsage }

// BottomWordUsage reports the bottom words consumed by the stack, with its high-water mark
func (m *StackMetadata) BottomWordUsage() memutils.Usage { return m.bottomWordUsage }

// TopWordUsage reports the top words consumed by the stack, with its high-water mark
func (m *StackMetadata) TopWordUsage() memutils.Usage { return m.topWordUsage }

// Validate checks that the entries tile the stacks exactly and that the stack pointers sit at the
// end of the last entry.
func (m *StackMetadata) Validate() error {
	bottomCB := m.limits.CBBase
	bottomOOL := m.limits.WordBase
	topOOL := m.limits.WordCapacity

	for handle, entry := range m.entries {
		if entry.BottomCB != bottomCB {
			return errors.Errorf("entry %d starts at descriptor %d, expected %d", handle, entry.BottomCB, bottomCB)
		}
		if entry.BottomOOL != bottomOOL {
			return errors.Errorf("entry %d starts at bottom word %d, expected %d", handle, entry.BottomOOL, bottomOOL)
		}
		if entry.TopOOL != topOOL {
			return errors.Errorf("entry %d starts at top word %d, expected %d", handle, entry.TopOOL, topOOL)
		}
		if entry.CBs < 0 || entry.BottomWords < 0 || entry.TopWords < 0 {
			return errors.Errorf("entry %d has a negative shape %+v", handle, entry.Shape)
		}

		bottomCB += entry.CBs
		bottomOOL += entry.BottomWords
		topOOL -= entry.TopWords
	}

	if len(m.entries) > 0 && m.entries[len(m.entries)-1].Deleted {
		return errors.Errorf("topmost entry %d is deleted but was not reclaimed", len(m.entries)-1)
	}

	if bottomCB != m.bottomCB || bottomOOL != m.bottomOOL || topOOL != m.topOOL {
		return errors.Errorf("stack pointers (%d, %d, %d) do not match the entries (%d, %d, %d)",
			m.bottomCB, m.bottomOOL, m.topOOL, bottomCB, bottomOOL, topOOL)
	}

	if m.bottomCB > m.limits.CBCapacity {
		return errors.Errorf("descriptor stack at %d overruns its capacity %d", m.bottomCB, m.limits.CBCapacity)
	}

	if m.bottomOOL > m.topOOL {
		return errors.Errorf("bottom words at %d overlap top words at %d", m.bottomOOL, m.topOOL)
	}

	if len(m.entries) > m.limits.MaxEntries {
		return errors.Errorf("%d entries exceed the limit of %d", len(m.entries), m.limits.MaxEntries)
	}

	return nil
}

// CreateAllocationRequest retrieves an AllocationRequest indicating where an entry of the requested
// shape would be placed. A deleted entry with exactly the same shape is preferred; otherwise the
// stacks are extended. The request can be passed to Alloc to commit it.
func (m *StackMetadata) CreateAllocationRequest(shape Shape) (AllocationRequest, error) {
	if shape.CBs <= 0 {
		return AllocationRequest{}, errors.New("an entry needs at least one descriptor")
	}
	if shape.BottomWords < 0 || shape.TopWords < 0 {
		return AllocationRequest{}, errors.New("word counts cannot be negative")
	}
	memutils.DebugValidate(m)

	for handle, entry := range m.entries {
		if entry.Deleted && entry.Shape == shape {
			return AllocationRequest{
				Handle: EntryHandle(handle),
				Item:   entry,
				Type:   AllocationRequestReuse,
			}, nil
		}
	}

	if m.bottomCB+shape.CBs > m.limits.CBCapacity {
		return AllocationRequest{}, errors.Wrapf(ErrDescriptorsExhausted, "need %d, %d free", shape.CBs, m.limits.CBCapacity-m.bottomCB)
	}

	if m.bottomOOL+shape.BottomWords > m.topOOL-shape.TopWords {
		return AllocationRequest{}, errors.Wrapf(ErrWordsExhausted, "need %d, %d free", shape.BottomWords+shape.TopWords, m.topOOL-m.bottomOOL)
	}

	if len(m.entries) >= m.limits.MaxEntries {
		return AllocationRequest{}, errors.Wrapf(ErrEntriesExhausted, "limit is %d", m.limits.MaxEntries)
	}

	return AllocationRequest{
		Handle: EntryHandle(len(m.entries)),
		Item: Entry{
			Shape:     shape,
			BottomCB:  m.bottomCB,
			BottomOOL: m.bottomOOL,
			TopOOL:    m.topOOL,
		},
		Type: AllocationRequestExtend,
	}, nil
}

// Alloc commits an AllocationRequest. It returns an error if the request no longer describes a
// valid placement, i.e. the stack moved since the request was created.
func (m *StackMetadata) Alloc(req AllocationRequest, userData any) error {
	handle := int(req.Handle)

	switch req.Type {
	case AllocationRequestReuse:
		if handle < 0 || handle >= len(m.entries) {
			return errors.Errorf("reused entry %d no longer exists", handle)
		}
		entry := &m.entries[handle]
		if !entry.Deleted || entry.Shape != req.Item.Shape || entry.BottomCB != req.Item.BottomCB {
			return errors.Errorf("reused entry %d is no longer a deleted entry of shape %+v", handle, req.Item.Shape)
		}
		entry.Deleted = false
		entry.UserData = userData
	case AllocationRequestExtend:
		if handle != len(m.entries) || req.Item.BottomCB != m.bottomCB ||
			req.Item.BottomOOL != m.bottomOOL || req.Item.TopOOL != m.topOOL {
			return errors.New("the stack has moved since the allocation request was created")
		}
		entry := req.Item
		entry.UserData = userData
		entry.Deleted = false
		m.entries = append(m.entries, entry)

		m.bottomCB += entry.CBs
		m.bottomOOL += entry.BottomWords
		m.topOOL -= entry.TopWords
		m.updateUsage()
	default:
		return errors.Errorf("unknown allocation request type %s", req.Type)
	}

	memutils.DebugValidate(m)
	return nil
}

// Free marks an entry deleted and reclaims the space of any deleted entries left at the top of
// the stack. It returns an error if the handle does not map to a live entry.
func (m *StackMetadata) Free(handle EntryHandle) error {
	index := int(handle)
	if index < 0 || index >= len(m.entries) || m.entries[index].Deleted {
		return errors.Wrapf(ErrUnknownEntry, "entry %d", index)
	}

	m.entries[index].Deleted = true
	m.entries[index].UserData = nil

	if index == len(m.entries)-1 {
		for index > 0 && m.entries[index-1].Deleted {
			index--
		}

		lowest := m.entries[index]
		m.bottomCB = lowest.BottomCB
		m.bottomOOL = lowest.BottomOOL
		m.topOOL = lowest.TopOOL
		m.entries = m.entries[:index]
		m.updateUsage()
	}

	memutils.DebugValidate(m)
	return nil
}

// Entry returns the entry for a handle. ok is false if the handle was never allocated or its entry
// was reclaimed. A deleted but reserved entry is returned with Deleted set.
func (m *StackMetadata) Entry(handle EntryHandle) (entry Entry, ok bool) {
	index := int(handle)
	if index < 0 || index >= len(m.entries) {
		return Entry{}, false
	}

	return m.entries[index], true
}

// AllocationUserData returns the userdata value provided when a live entry was committed
func (m *StackMetadata) AllocationUserData(handle EntryHandle) (any, error) {
	entry, ok := m.Entry(handle)
	if !ok || entry.Deleted {
		return nil, errors.Wrapf(ErrUnknownEntry, "entry %d", handle)
	}
	return entry.UserData, nil
}

// Clear drops every entry and returns the stack pointers to their bases. High-water marks survive.
func (m *StackMetadata) Clear() {
	m.entries = m.entries[:0]
	m.bottomCB = m.limits.CBBase
	m.bottomOOL = m.limits.WordBase
	m.topOOL = m.limits.WordCapacity
	m.updateUsage()
}

// VisitAllRegions will call the provided callback once for each entry on the stack, live or
// reserved, from the bottom up.
func (m *StackMetadata) VisitAllRegions(handleEntry func(handle EntryHandle, entry Entry) error) error {
	for handle, entry := range m.entries {
		err := handleEntry(EntryHandle(handle), entry)
		if err != nil {
			return err
		}
	}

	return nil
}

// AddDetailedStatistics sums the stack's entries into the provided memutils.DetailedStatistics
func (m *StackMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	_ = m.VisitAllRegions(func(handle EntryHandle, entry Entry) error {
		if entry.Deleted {
			stats.AddReservedRange(entry.CBs)
		} else {
			stats.AddAllocation(entry.CBs, entry.BottomWords+entry.TopWords)
		}

		return nil
	})
}

// AddStatistics sums the stack's live entries into the provided memutils.Statistics
func (m *StackMetadata) AddStatistics(stats *memutils.Statistics) {
	_ = m.VisitAllRegions(func(handle EntryHandle, entry Entry) error {
		stats.EntryCount++
		if !entry.Deleted {
			stats.AllocationCount++
			stats.DescriptorCount += entry.CBs
			stats.WordCount += entry.BottomWords + entry.TopWords
		}

		return nil
	})
}

// BlockJsonData populates a json object with information about the stack
func (m *StackMetadata) BlockJsonData(json jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	m.AddDetailedStatistics(&stats)

	json.Name("Entries").Int(stats.EntryCount)
	json.Name("LiveEntries").Int(stats.AllocationCount)
	json.Name("ReservedEntries").Int(stats.ReservedRangeCount)
	json.Name("ReservedDescriptors").Int(stats.ReservedDescriptors)

	writeUsage(json, "Descriptors", m.cbUsage)
	writeUsage(json, "BottomWords", m.bottomWordUsage)
	writeUsage(json, "TopWords", m.topWordUsage)

	arr := json.Name("Stack").Array()
	defer arr.End()

	_ = m.VisitAllRegions(func(handle EntryHandle, entry Entry) error {
		obj := arr.Object()
		defer obj.End()

		obj.Name("Id").Int(int(handle))
		obj.Name("Deleted").Bool(entry.Deleted)
		obj.Name("CB").String(fmt.Sprintf("%d..%d", entry.BottomCB, entry.TopCB()))
		obj.Name("BottomWords").Int(entry.BottomWords)
		obj.Name("TopWords").Int(entry.TopWords)
		return nil
	})
}

func writeUsage(json jwriter.ObjectState, name string, usage memutils.Usage) {
	obj := json.Name(name).Object()
	defer obj.End()

	obj.Name("Current").Int(usage.Current)
	obj.Name("High").Int(usage.High)
	obj.Name("Max").Int(usage.Max)
}

func (m *StackMetadata) updateUsage() {
	m.cbUsage.Set(m.bottomCB - m.limits.CBBase)
	m.bottomWordUsage.Set(m.bottomOOL - m.limits.WordBase)
	m.topWordUsage.Set(m.limits.WordCapacity - m.topOOL)
}
