package multifile

// Policy selects which physical file a new page allocation lands on,
// per spec §4.8.
type Policy int

const (
	// ProportionalFill chooses the writable file with the most free
	// space (fewest allocated local pages, since every file shares the
	// same page size).
	ProportionalFill Policy = iota
	// RoundRobin cycles through writable files in order.
	RoundRobin
	// Striped behaves like RoundRobin but signals intent: sequential
	// scans issued against a Striped group are expected to fan out
	// reads across files in parallel via Group.ReadFanOut.
	Striped
)

func (p Policy) String() string {
	switch p {
	case ProportionalFill:
		return "proportional_fill"
	case RoundRobin:
		return "round_robin"
	case Striped:
		return "striped"
	default:
		return "unknown"
	}
}
