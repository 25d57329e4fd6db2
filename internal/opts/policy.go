package opts

// Policy controls how Override merges a fragment into a Node.
type Policy struct {
	// Strict makes fragments of unknown kind (and nodes of another shape)
	// leave the base unchanged instead of being coerced into a map.
	Strict bool
	// CheckTypes requires each new value to fit the existing field's type.
	CheckTypes bool
	// AddNewFields lets fragment keys absent from the base grow the field set.
	AddNewFields bool
	// Delistify unwraps one-element lists offered for scalar fields.
	Delistify bool
	// Hush logs and skips a mistyped field instead of failing.
	Hush bool
}

// DefaultPolicy is the policy used when no Metas are available.
func DefaultPolicy() Policy {
	return Policy{Strict: true, CheckTypes: true, Delistify: true}
}

// PolicyFromMetas reads the override flags from a Metas node. Missing flags
// keep the DefaultPolicy values.
func PolicyFromMetas(metas *Node) Policy {
	p := DefaultPolicy()
	if metas == nil {
		return p
	}
	if v, ok := metas.Value("strict").(bool); ok {
		p.Strict = v
	}
	if v, ok := metas.Value("check_types").(bool); ok {
		p.CheckTypes = v
	}
	if v, ok := metas.Value("add_new_opts").(bool); ok {
		p.AddNewFields = v
	}
	if v, ok := metas.Value("delistify").(bool); ok {
		p.Delistify = v
	}
	if v, ok := metas.Value("hush").(bool); ok {
		p.Hush = v
	}
	return p
}
