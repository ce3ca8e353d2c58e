package metadata

// AllocationRequestType is an enum that indicates how StackMetadata intends to satisfy a request.
// It is returned in AllocationRequest from CreateAllocationRequest
type AllocationRequestType uint32

const (
	// AllocationRequestReuse indicates that a deleted entry with exactly the requested shape will
	// be brought back to life, keeping its ranges
	AllocationRequestReuse AllocationRequestType = iota
	// AllocationRequestExtend indicates that a new entry will be pushed onto the stacks
	AllocationRequestExtend
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestReuse:  "Reuse",
	AllocationRequestExtend: "Extend",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is returned from StackMetadata.CreateAllocationRequest and indicates where the
// metadata intends to place a new entry. The consumer may write its descriptors into the ranges
// described by Item, then commit the entry with StackMetadata.Alloc. Nothing in the metadata changes
// until Alloc is called.
type AllocationRequest struct {
	// Handle is the id the entry will have once committed
	Handle EntryHandle
	// Item holds the ranges the entry will occupy
	Item Entry
	// Type identifies whether a deleted entry is being reused or the stacks are being extended
	Type AllocationRequestType
}
