package sphare

// RelationField is one of the two denormalized relation sets of a profile.
type RelationField string

const (
	FieldFollower  RelationField = "follower"
	FieldFollowing RelationField = "following"
)

type SetOpKind byte

const (
	// Add the value if absent.
	SetAdd SetOpKind = iota + 1
	// Remove the value if present.
	SetRemove
)

func (k SetOpKind) String() string {
	switch k {
	case SetAdd:
		return "add"
	case SetRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// SetOp is a single idempotent set operation on a relation field.
type SetOp struct {
	Kind  SetOpKind
	Field RelationField
	Value Email
}

func AddTo(field RelationField, value Email) SetOp {
	return SetOp{Kind: SetAdd, Field: field, Value: value}
}

func RemoveFrom(field RelationField, value Email) SetOp {
	return SetOp{Kind: SetRemove, Field: field, Value: value}
}

// ApplySetOp returns the set after applying op. The input slice is not modified.
func ApplySetOp(set []Email, op SetOp) []Email {
	switch op.Kind {
	case SetAdd:
		if containsEmail(set, op.Value) {
			return set
		}
		out := make([]Email, len(set), len(set)+1)
		copy(out, set)
		return append(out, op.Value)
	case SetRemove:
		out := make([]Email, 0, len(set))
		for _, e := range set {
			if e != op.Value {
				out = append(out, e)
			}
		}
		return out
	default:
		return set
	}
}

// ApplySetOps applies ops to a copy of profile.
func (p Profile) ApplySetOps(ops ...SetOp) Profile {
	for _, op := range ops {
		switch op.Field {
		case FieldFollower:
			p.Follower = ApplySetOp(p.Follower, op)
		case FieldFollowing:
			p.Following = ApplySetOp(p.Following, op)
		}
	}
	return p
}
