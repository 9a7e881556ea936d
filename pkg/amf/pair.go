package amf

// Pair is one ordered member of an object or associative array. Member
// insertion order is significant on the wire and is preserved on round-trip,
// so members are kept as pair slices rather than maps.
type Pair[V any] struct {
	Key   string
	Value V
}
