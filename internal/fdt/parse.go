package fdt

import (
	"encoding/binary"
	"fmt"
)

// Parse decodes an FDT blob produced by Build back into a Node tree.
func Parse(blob []byte) (Node, error) {
	if len(blob) < fdtHeaderSize {
		return Node{}, fmt.Errorf("fdt: blob too small (%d bytes)", len(blob))
	}
	magic := binary.BigEndian.Uint32(blob[0:4])
	if magic != fdtMagic {
		return Node{}, fmt.Errorf("fdt: bad magic 0x%08x", magic)
	}
	offStruct := binary.BigEndian.Uint32(blob[8:12])
	offStrings := binary.BigEndian.Uint32(blob[12:16])
	sizeStrings := binary.BigEndian.Uint32(blob[32:36])
	sizeStruct := binary.BigEndian.Uint32(blob[36:40])

	if int(offStruct+sizeStruct) > len(blob) || int(offStrings+sizeStrings) > len(blob) {
		return Node{}, fmt.Errorf("fdt: header offsets exceed blob length")
	}

	structBuf := blob[offStruct : offStruct+sizeStruct]
	stringsBuf := blob[offStrings : offStrings+sizeStrings]

	p := &parser{structBuf: structBuf, strings: stringsBuf}
	root, err := p.parseNode()
	if err != nil {
		return Node{}, err
	}
	if tok, err := p.readToken(); err != nil || tok != fdtEndToken {
		return Node{}, fmt.Errorf("fdt: missing end token")
	}
	return root, nil
}

type parser struct {
	structBuf []byte
	strings   []byte
	pos       int
}

func (p *parser) readToken() (uint32, error) {
	if p.pos+4 > len(p.structBuf) {
		return 0, fmt.Errorf("fdt: truncated struct block")
	}
	tok := binary.BigEndian.Uint32(p.structBuf[p.pos : p.pos+4])
	p.pos += 4
	return tok, nil
}

func (p *parser) readCString() (string, error) {
	start := p.pos
	for p.pos < len(p.structBuf) && p.structBuf[p.pos] != 0 {
		p.pos++
	}
	if p.pos >= len(p.structBuf) {
		return "", fmt.Errorf("fdt: unterminated string")
	}
	s := string(p.structBuf[start:p.pos])
	p.pos++ // skip NUL
	p.align4()
	return s, nil
}

func (p *parser) align4() {
	for p.pos%4 != 0 {
		p.pos++
	}
}

func (p *parser) readBytes(n int) ([]byte, error) {
	if p.pos+n > len(p.structBuf) {
		return nil, fmt.Errorf("fdt: truncated property value")
	}
	data := p.structBuf[p.pos : p.pos+n]
	p.pos += n
	p.align4()
	return data, nil
}

func (p *parser) stringAt(off uint32) (string, error) {
	if int(off) >= len(p.strings) {
		return "", fmt.Errorf("fdt: string offset out of range")
	}
	end := int(off)
	for end < len(p.strings) && p.strings[end] != 0 {
		end++
	}
	return string(p.strings[off:end]), nil
}

// parseNode expects the cursor to be positioned at a begin-node token and
// consumes through the matching end-node token, leaving the cursor
// positioned just after it.
func (p *parser) parseNode() (Node, error) {
	tok, err := p.readToken()
	if err != nil {
		return Node{}, err
	}
	if tok != fdtBeginNodeToken {
		return Node{}, fmt.Errorf("fdt: expected begin-node token, got 0x%x", tok)
	}
	name, err := p.readCString()
	if err != nil {
		return Node{}, err
	}

	n := Node{Name: name}

	for {
		tok, err := p.readToken()
		if err != nil {
			return Node{}, err
		}
		switch tok {
		case fdtPropToken:
			if err := p.parseProperty(&n); err != nil {
				return Node{}, err
			}
		case fdtBeginNodeToken:
			p.pos -= 4 // unread, parseNode re-reads the begin token
			child, err := p.parseNode()
			if err != nil {
				return Node{}, err
			}
			n.Children = append(n.Children, child)
		case fdtEndNodeToken:
			return n, nil
		default:
			return Node{}, fmt.Errorf("fdt: unexpected token 0x%x", tok)
		}
	}
}

func (p *parser) parseProperty(n *Node) error {
	if p.pos+8 > len(p.structBuf) {
		return fmt.Errorf("fdt: truncated property header")
	}
	length := binary.BigEndian.Uint32(p.structBuf[p.pos : p.pos+4])
	nameOff := binary.BigEndian.Uint32(p.structBuf[p.pos+4 : p.pos+8])
	p.pos += 8

	name, err := p.stringAt(nameOff)
	if err != nil {
		return err
	}
	raw, err := p.readBytes(int(length))
	if err != nil {
		return err
	}

	if n.Properties == nil {
		n.Properties = make(map[string]Property)
	}
	n.Properties[name] = decodeProperty(name, raw)
	return nil
}

// decodeProperty guesses a typed representation for a raw property value.
// Without out-of-band schema information (real FDT property types are
// defined by convention, not the format itself) this favors the
// representation the rest of the kernel core actually consumes:
// NUL-terminated ASCII runs become string lists, otherwise "reg" and
// "ranges" payloads that are a multiple of 8 bytes become u64 arrays
// (reg/range cells in this model use #address-cells = #size-cells = 2),
// any other payload that is a multiple of 4 becomes a u32 array,
// empty payloads become a flag, and anything else is left as raw bytes.
func decodeProperty(name string, raw []byte) Property {
	if len(raw) == 0 {
		return Property{Flag: true}
	}
	if looksLikeStringList(raw) {
		return Property{Strings: splitCStrings(raw)}
	}
	switch {
	case len(raw)%8 == 0 && (name == "reg" || name == "ranges" || len(raw)%4 != 0):
		vals := make([]uint64, len(raw)/8)
		for i := range vals {
			vals[i] = binary.BigEndian.Uint64(raw[i*8 : i*8+8])
		}
		return Property{U64: vals}
	case len(raw)%4 == 0:
		vals := make([]uint32, len(raw)/4)
		for i := range vals {
			vals[i] = binary.BigEndian.Uint32(raw[i*4 : i*4+4])
		}
		return Property{U32: vals}
	default:
		return Property{Bytes: append([]byte(nil), raw...)}
	}
}

func looksLikeStringList(raw []byte) bool {
	if raw[len(raw)-1] != 0 {
		return false
	}
	for _, b := range raw {
		if b != 0 && (b < 0x20 || b > 0x7e) {
			return false
		}
	}
	return true
}

func splitCStrings(raw []byte) []string {
	var out []string
	start := 0
	for i, b := range raw {
		if b == 0 {
			out = append(out, string(raw[start:i]))
			start = i + 1
		}
	}
	return out
}
