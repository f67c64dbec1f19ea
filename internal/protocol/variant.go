package protocol

import "fmt"

// Variant type tags inside a CallFunction argument list.
const (
	VariantFloat  = 1
	VariantString = 2
	VariantVec2   = 3
	VariantVec3   = 4
	VariantUint   = 5
	VariantInt    = 9
)

// Variant is one typed slot of a CallFunction argument list.
type Variant struct {
	Tag   uint8
	Str   string
	F     [3]float32
	U     uint32
	I     int32
}

// VariantList is the ordered argument list of a CallFunction packet.
// Slots are addressed by their wire index; missing slots read as zero.
type VariantList struct {
	slots map[uint8]Variant
	order []uint8
}

// NewVariantList creates an empty list for building outbound packets.
func NewVariantList() *VariantList {
	return &VariantList{slots: make(map[uint8]Variant)}
}

func (v *VariantList) set(idx uint8, slot Variant) {
	if _, ok := v.slots[idx]; !ok {
		v.order = append(v.order, idx)
	}
	v.slots[idx] = slot
}

// SetString sets slot idx to a string variant.
func (v *VariantList) SetString(idx uint8, s string) {
	v.set(idx, Variant{Tag: VariantString, Str: s})
}

// SetFloat sets slot idx to a float variant.
func (v *VariantList) SetFloat(idx uint8, f float32) {
	v.set(idx, Variant{Tag: VariantFloat, F: [3]float32{f}})
}

// SetVec2 sets slot idx to a vec2 variant.
func (v *VariantList) SetVec2(idx uint8, x, y float32) {
	v.set(idx, Variant{Tag: VariantVec2, F: [3]float32{x, y}})
}

// SetVec3 sets slot idx to a vec3 variant.
func (v *VariantList) SetVec3(idx uint8, x, y, z float32) {
	v.set(idx, Variant{Tag: VariantVec3, F: [3]float32{x, y, z}})
}

// SetUint sets slot idx to a u32 variant.
func (v *VariantList) SetUint(idx uint8, u uint32) {
	v.set(idx, Variant{Tag: VariantUint, U: u})
}

// SetInt sets slot idx to an i32 variant.
func (v *VariantList) SetInt(idx uint8, i int32) {
	v.set(idx, Variant{Tag: VariantInt, I: i})
}

// Len returns the number of populated slots.
func (v *VariantList) Len() int {
	return len(v.order)
}

// String returns the string at slot idx, or "" when the slot is absent or
// holds another type. Accessors never fail; mismatches coerce to zero.
func (v *VariantList) String(idx uint8) string {
	if s, ok := v.slots[idx]; ok && s.Tag == VariantString {
		return s.Str
	}
	return ""
}

// Float returns the float at slot idx, or 0 on absence/mismatch.
func (v *VariantList) Float(idx uint8) float32 {
	if s, ok := v.slots[idx]; ok && s.Tag == VariantFloat {
		return s.F[0]
	}
	return 0
}

// Vec2 returns the vec2 at slot idx, or zeros on absence/mismatch.
func (v *VariantList) Vec2(idx uint8) (float32, float32) {
	if s, ok := v.slots[idx]; ok && s.Tag == VariantVec2 {
		return s.F[0], s.F[1]
	}
	return 0, 0
}

// Vec3 returns the vec3 at slot idx, or zeros on absence/mismatch.
func (v *VariantList) Vec3(idx uint8) (float32, float32, float32) {
	if s, ok := v.slots[idx]; ok && s.Tag == VariantVec3 {
		return s.F[0], s.F[1], s.F[2]
	}
	return 0, 0, 0
}

// Uint returns the u32 at slot idx, or 0 on absence/mismatch.
func (v *VariantList) Uint(idx uint8) uint32 {
	if s, ok := v.slots[idx]; ok && s.Tag == VariantUint {
		return s.U
	}
	return 0
}

// Int returns the i32 at slot idx, or 0 on absence/mismatch.
func (v *VariantList) Int(idx uint8) int32 {
	if s, ok := v.slots[idx]; ok && s.Tag == VariantInt {
		return s.I
	}
	return 0
}

// Function returns slot 0 as a string; by convention it names the remote
// procedure of a CallFunction packet.
func (v *VariantList) Function() string {
	return v.String(0)
}

// Marshal renders the list in wire order.
func (v *VariantList) Marshal() []byte {
	w := NewWriter(16 + 8*len(v.order))
	w.WriteByte(byte(len(v.order)))
	for _, idx := range v.order {
		s := v.slots[idx]
		w.WriteByte(idx)
		w.WriteByte(s.Tag)
		switch s.Tag {
		case VariantFloat:
			w.WriteFloat32(s.F[0])
		case VariantString:
			w.WriteString32(s.Str)
		case VariantVec2:
			w.WriteFloat32(s.F[0])
			w.WriteFloat32(s.F[1])
		case VariantVec3:
			w.WriteFloat32(s.F[0])
			w.WriteFloat32(s.F[1])
			w.WriteFloat32(s.F[2])
		case VariantUint:
			w.WriteUint32(s.U)
		case VariantInt:
			w.WriteInt32(s.I)
		}
	}
	return w.Bytes()
}

// UnmarshalVariantList parses a CallFunction argument list.
func UnmarshalVariantList(data []byte) (*VariantList, error) {
	r := NewReader(data)
	count, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("variant list: %w", err)
	}

	v := NewVariantList()
	for n := 0; n < int(count); n++ {
		idx, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("variant index: %w", err)
		}
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("variant %d tag: %w", idx, err)
		}

		slot := Variant{Tag: tag}
		switch tag {
		case VariantFloat:
			if slot.F[0], err = r.ReadFloat32(); err != nil {
				return nil, fmt.Errorf("variant %d float: %w", idx, err)
			}
		case VariantString:
			if slot.Str, err = r.ReadString32(); err != nil {
				return nil, fmt.Errorf("variant %d string: %w", idx, err)
			}
		case VariantVec2:
			for i := 0; i < 2; i++ {
				if slot.F[i], err = r.ReadFloat32(); err != nil {
					return nil, fmt.Errorf("variant %d vec2: %w", idx, err)
				}
			}
		case VariantVec3:
			for i := 0; i < 3; i++ {
				if slot.F[i], err = r.ReadFloat32(); err != nil {
					return nil, fmt.Errorf("variant %d vec3: %w", idx, err)
				}
			}
		case VariantUint:
			if slot.U, err = r.ReadUint32(); err != nil {
				return nil, fmt.Errorf("variant %d uint: %w", idx, err)
			}
		case VariantInt:
			if slot.I, err = r.ReadInt32(); err != nil {
				return nil, fmt.Errorf("variant %d int: %w", idx, err)
			}
		default:
			return nil, fmt.Errorf("variant %d: unknown type tag %d", idx, tag)
		}
		v.set(idx, slot)
	}
	return v, nil
}
