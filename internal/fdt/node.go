package fdt

// Property describes a single device-tree property in a JSON-friendly form.
// Exactly one of the typed fields should be populated for a given property.
type Property struct {
	Strings []string `json:"strings,omitempty"`
	U32     []uint32 `json:"u32,omitempty"`
	U64     []uint64 `json:"u64,omitempty"`
	Bytes   []byte   `json:"bytes,omitempty"`
	Flag    bool     `json:"flag,omitempty"`
}

// Kind returns the name of the populated field or an empty string if none are set.
func (p Property) Kind() string {
	switch {
	case len(p.Strings) > 0:
		return "strings"
	case len(p.U32) > 0:
		return "u32"
	case len(p.U64) > 0:
		return "u64"
	case len(p.Bytes) > 0:
		return "bytes"
	case p.Flag:
		return "flag"
	default:
		return ""
	}
}

// DefinedCount reports how many distinct fields on the property are populated.
func (p Property) DefinedCount() int {
	count := 0
	if len(p.Strings) > 0 {
		count++
	}
	if len(p.U32) > 0 {
		count++
	}
	if len(p.U64) > 0 {
		count++
	}
	if len(p.Bytes) > 0 {
		count++
	}
	if p.Flag {
		count++
	}
	return count
}

// Node describes a device-tree node using JSON-friendly structures.
type Node struct {
	Name       string              `json:"name"`
	Properties map[string]Property `json:"properties,omitempty"`
	Children   []Node              `json:"children,omitempty"`
}

// Property looks up a named property, reporting whether it was present.
func (n Node) Property(name string) (Property, bool) {
	p, ok := n.Properties[name]
	return p, ok
}

// DeviceType returns the node's "device_type" string property, if any.
func (n Node) DeviceType() (string, bool) {
	p, ok := n.Property("device_type")
	if !ok || len(p.Strings) == 0 {
		return "", false
	}
	return p.Strings[0], true
}

// Compatible returns the node's "compatible" string-list property.
func (n Node) Compatible() []string {
	p, ok := n.Property("compatible")
	if !ok {
		return nil
	}
	return p.Strings
}

// HasCompatible reports whether the node's compatible list contains name.
func (n Node) HasCompatible(name string) bool {
	for _, c := range n.Compatible() {
		if c == name {
			return true
		}
	}
	return false
}

// Phandle returns the node's "phandle" u32 property, if any.
func (n Node) Phandle() (uint32, bool) {
	p, ok := n.Property("phandle")
	if !ok || len(p.U32) == 0 {
		return 0, false
	}
	return p.U32[0], true
}

// RegRegion describes one (address, size) pair taken from a "reg" property.
type RegRegion struct {
	Address uint64
	Size    uint64
}

// Reg decodes the node's "reg" property as a sequence of (address, size)
// pairs, assuming #address-cells = #size-cells = 2 (the only layout this
// model's boards use).
func (n Node) Reg() []RegRegion {
	p, ok := n.Property("reg")
	if !ok || len(p.U64)%2 != 0 {
		return nil
	}
	regions := make([]RegRegion, 0, len(p.U64)/2)
	for i := 0; i+1 < len(p.U64); i += 2 {
		regions = append(regions, RegRegion{Address: p.U64[i], Size: p.U64[i+1]})
	}
	return regions
}

// AllNodes returns every node in the tree rooted at n, in depth-first,
// pre-order, including n itself.
func (n Node) AllNodes() []Node {
	var out []Node
	var walk func(Node)
	walk = func(cur Node) {
		out = append(out, cur)
		for _, child := range cur.Children {
			walk(child)
		}
	}
	walk(n)
	return out
}
