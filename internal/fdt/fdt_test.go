package fdt

import "testing"

func TestBuildParseRoundTrip(t *testing.T) {
	root := Node{
		Name: "",
		Properties: map[string]Property{
			"compatible": {Strings: []string{"riscv-virtio"}},
			"#size-cells": {U32: []uint32{2}},
		},
		Children: []Node{
			{
				Name: "cpus",
				Properties: map[string]Property{
					"timebase-frequency": {U32: []uint32{10000000}},
				},
				Children: []Node{
					{
						Name: "cpu@0",
						Properties: map[string]Property{
							"device_type": {Strings: []string{"cpu"}},
							"reg":         {U32: []uint32{0}},
						},
					},
					{
						Name: "interrupt-controller",
						Properties: map[string]Property{
							"compatible": {Strings: []string{"riscv,cpu-intc"}},
							"phandle":    {U32: []uint32{1}},
						},
					},
				},
			},
			{
				Name: "memory@80000000",
				Properties: map[string]Property{
					"device_type": {Strings: []string{"memory"}},
					"reg":         {U64: []uint64{0x80000000, 0x8000000}},
				},
			},
			{
				Name: "plic@c000000",
				Properties: map[string]Property{
					"compatible": {Strings: []string{"sifive,plic-1.0.0"}},
					"reg":        {U64: []uint64{0xc000000, 0x4000000}},
					"phandle":    {U32: []uint32{2}},
				},
			},
		},
	}

	blob, err := Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	all := got.AllNodes()
	if len(all) != 6 {
		t.Fatalf("AllNodes: got %d nodes, want 6", len(all))
	}

	var plic, mem, intc *Node
	for i := range all {
		switch {
		case all[i].HasCompatible("sifive,plic-1.0.0"):
			plic = &all[i]
		case all[i].HasCompatible("riscv,cpu-intc"):
			intc = &all[i]
		}
		if dt, ok := all[i].DeviceType(); ok && dt == "memory" {
			mem = &all[i]
		}
	}
	if plic == nil {
		t.Fatal("plic node not found after round trip")
	}
	if intc == nil {
		t.Fatal("intc node not found after round trip")
	}
	if mem == nil {
		t.Fatal("memory node not found after round trip")
	}

	regions := plic.Reg()
	if len(regions) != 1 || regions[0].Address != 0xc000000 || regions[0].Size != 0x4000000 {
		t.Fatalf("plic reg = %+v, want [{0xc000000 0x4000000}]", regions)
	}

	phandle, ok := plic.Phandle()
	if !ok || phandle != 2 {
		t.Fatalf("plic phandle = %v, %v, want 2, true", phandle, ok)
	}

	rootGot := got
	if got := rootGot.Compatible(); len(got) != 1 || got[0] != "riscv-virtio" {
		t.Fatalf("root compatible = %v, want [riscv-virtio]", got)
	}
}

func TestPropertyKindAndDefinedCount(t *testing.T) {
	cases := []struct {
		name string
		prop Property
		kind string
		n    int
	}{
		{"empty", Property{}, "", 0},
		{"flag", Property{Flag: true}, "flag", 1},
		{"strings", Property{Strings: []string{"a"}}, "strings", 1},
		{"u32", Property{U32: []uint32{1}}, "u32", 1},
		{"ambiguous", Property{Flag: true, U32: []uint32{1}}, "u32", 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.prop.Kind(); got != c.kind {
				t.Errorf("Kind() = %q, want %q", got, c.kind)
			}
			if got := c.prop.DefinedCount(); got != c.n {
				t.Errorf("DefinedCount() = %d, want %d", got, c.n)
			}
		})
	}
}
