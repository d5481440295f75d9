package permissions

// Override is the per-user adjustment layered on top of role defaults.
// Grant only makes sense for non-defaults and Revoke only for defaults.
type Override struct {
	Grant  Set `json:"grant"`
	Revoke Set `json:"revoke"`
}

// State is the rendered state of one permission checkbox
type State int

const (
	// StateOff means the role does not confer the key and there is no override
	StateOff State = iota
	// StateDefault means the role confers the key and there is no override
	StateDefault
	// StateGranted means a user-level grant adds a key the role lacks
	StateGranted
	// StateRevoked means a user-level revoke removes a key the role confers
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateGranted:
		return "granted"
	case StateRevoked:
		return "revoked"
	default:
		return "off"
	}
}

// MarshalText encodes the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Checked reports the checkbox value for the state
func (s State) Checked() bool {
	return s == StateDefault || s == StateGranted
}

// Custom reports whether the state comes from a user-level override
func (s State) Custom() bool {
	return s == StateGranted || s == StateRevoked
}

// StateOf classifies k against the role defaults and override. It agrees
// with Effective even for an override that was never normalized: a revoke
// wins over a grant, a grant of a default is a plain default and a revoke
// of a non-default is off.
func StateOf(k Key, defaults Set, o Override) State {
	if defaults.Has(k) {
		if o.Revoke.Has(k) {
			return StateRevoked
		}
		return StateDefault
	}
	if o.Grant.Has(k) && !o.Revoke.Has(k) {
		return StateGranted
	}
	return StateOff
}

// Clone returns an independent copy
func (o Override) Clone() Override {
	return Override{Grant: o.Grant.Clone(), Revoke: o.Revoke.Clone()}
}

// Equal compares both lists as sets
func (o Override) Equal(other Override) bool {
	return o.Grant.Equal(other.Grant) && o.Revoke.Equal(other.Revoke)
}

// IsCustomized reports whether any override is present
func (o Override) IsCustomized() bool {
	return o.Grant.Len() > 0 || o.Revoke.Len() > 0
}

// HasCustom reports whether k carries a user-level override
func (o Override) HasCustom(k Key) bool {
	return o.Grant.Has(k) || o.Revoke.Has(k)
}

// Toggle flips the checkbox for k and returns the new override. The
// receiver is left unchanged.
//
//	Off     + check   -> grant += k
//	Default + uncheck -> revoke += k
//	Granted + uncheck -> grant -= k
//	Revoked + check   -> revoke -= k
//
// Entries for k that have no effect are dropped first, so the result never
// lists k in both grant and revoke.
func (o Override) Toggle(k Key, defaults Set) Override {
	next := o.settle(k, defaults)
	switch StateOf(k, defaults, next) {
	case StateOff:
		next.Grant = next.Grant.With(k)
	case StateDefault:
		next.Revoke = next.Revoke.With(k)
	case StateGranted:
		next.Grant = next.Grant.Without(k)
	case StateRevoked:
		next.Revoke = next.Revoke.Without(k)
	}
	return next
}

// SetChecked drives the checkbox for k to checked, toggling only when needed. The
// second return value reports whether anything changed.
func (o Override) SetChecked(k Key, defaults Set, checked bool) (Override, bool) {
	if StateOf(k, defaults, o).Checked() == checked {
		return o, false
	}
	return o.Toggle(k, defaults), true
}

// Normalize drops entries that have no effect: grants of role defaults,
// revokes of non-defaults, and grants cancelled by a revoke. The effective
// set is unchanged and no key is left in both lists.
func (o Override) Normalize(defaults Set) Override {
	return Override{
		Grant: o.Grant.Filter(func(k Key) bool {
			return !defaults.Has(k) && !o.Revoke.Has(k)
		}),
		Revoke: o.Revoke.Filter(defaults.Has),
	}
}

// settle returns a copy with the ineffective entries for k removed
func (o Override) settle(k Key, defaults Set) Override {
	next := o.Clone()
	if defaults.Has(k) || o.Revoke.Has(k) {
		next.Grant = next.Grant.Without(k)
	}
	if !defaults.Has(k) {
		next.Revoke = next.Revoke.Without(k)
	}
	return next
}
