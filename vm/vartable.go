package vm

// ---------------------------------------------------------------------------
// VarTable: ordered variable slots with a name index
// ---------------------------------------------------------------------------

// VarTable holds (name, value) pairs. A name gets its index on first
// reference and keeps it for the life of the table. Slots written by index
// without a name (padding) have an empty name.
type VarTable struct {
	Names  []string `cbor:"1,keyasint"`
	Values []Value  `cbor:"2,keyasint"`

	index map[string]int // name -> slot, rebuilt lazily after decoding
}

// NewVarTable creates an empty table.
func NewVarTable() *VarTable {
	return &VarTable{index: make(map[string]int)}
}

func (t *VarTable) ensureIndex() {
	if t.index != nil {
		return
	}
	t.index = make(map[string]int, len(t.Names))
	for i, name := range t.Names {
		if name == "" {
			continue
		}
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
}

// Len returns the number of slots.
func (t *VarTable) Len() int {
	return len(t.Values)
}

// Lookup returns the slot index for name.
func (t *VarTable) Lookup(name string) (int, bool) {
	t.ensureIndex()
	i, ok := t.index[name]
	return i, ok
}

// Resolve returns the slot index for name, creating an empty slot on first
// reference.
func (t *VarTable) Resolve(name string) int {
	if i, ok := t.Lookup(name); ok {
		return i
	}
	t.Names = append(t.Names, name)
	t.Values = append(t.Values, None)
	i := len(t.Values) - 1
	t.index[name] = i
	return i
}

// Get returns the value at index i.
func (t *VarTable) Get(i int) (Value, bool) {
	if i < 0 || i >= len(t.Values) {
		return None, false
	}
	return t.Values[i], true
}

// GetByName returns the value bound to name.
func (t *VarTable) GetByName(name string) (Value, bool) {
	i, ok := t.Lookup(name)
	if !ok {
		return None, false
	}
	return t.Get(i)
}

// Set stores v at index i, padding the table with empty unnamed slots when
// i is past the end. Negative indexes are ignored.
func (t *VarTable) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(t.Values) <= i {
		t.Names = append(t.Names, "")
		t.Values = append(t.Values, None)
	}
	t.Values[i] = v
}

// Name returns the name of slot i ("" for padding or out of range).
func (t *VarTable) Name(i int) string {
	if t == nil || i < 0 || i >= len(t.Names) {
		return ""
	}
	return t.Names[i]
}

// Clone returns a deep copy.
func (t *VarTable) Clone() *VarTable {
	c := &VarTable{
		Names:  make([]string, len(t.Names)),
		Values: make([]Value, len(t.Values)),
	}
	copy(c.Names, t.Names)
	for i, v := range t.Values {
		c.Values[i] = v.Clone()
	}
	c.ensureIndex()
	return c
}
