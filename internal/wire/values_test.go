package wire

import "testing"

func TestValueRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Bool(true)
	w.I8(-5)
	w.I32(-1000)
	w.U32(4000000000)
	w.F32(3.5)
	w.Uvarint(123456)
	w.String("héllo 世界")
	opt := int32(42)
	w.OptionI32(&opt)
	w.OptionI32(nil)

	r := NewReader(w.Bytes())
	if b, _ := r.Bool(); !b {
		t.Fatal("bool")
	}
	if v, _ := r.I8(); v != -5 {
		t.Fatalf("i8 = %d", v)
	}
	if v, _ := r.I32(); v != -1000 {
		t.Fatalf("i32 = %d", v)
	}
	if v, _ := r.U32(); v != 4000000000 {
		t.Fatalf("u32 = %d", v)
	}
	if v, _ := r.F32(); v != 3.5 {
		t.Fatalf("f32 = %v", v)
	}
	if v, _ := r.Uvarint(); v != 123456 {
		t.Fatalf("uvarint = %d", v)
	}
	if s, _ := r.String(); s != "héllo 世界" {
		t.Fatalf("string = %q", s)
	}
	if v, _ := r.OptionI32(); v == nil || *v != 42 {
		t.Fatalf("option some = %v", v)
	}
	if v, _ := r.OptionI32(); v != nil {
		t.Fatalf("option none = %v", v)
	}
	if r.Len() != 0 {
		t.Fatalf("leftover bytes: %d", r.Len())
	}
}

func TestFloat16RoundTrip(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, 123.25, -0.001, 65504, -65504}
	for _, f := range cases {
		h := Float32ToFloat16(f)
		got := Float16ToFloat32(h)
		diff := got - f
		if diff < 0 {
			diff = -diff
		}
		// half precision has ~3 significant decimal digits; allow a
		// proportional tolerance.
		tol := float32(0.01)
		if f != 0 {
			tol = absf32(f) * 0.01
		}
		if diff > tol {
			t.Fatalf("f=%v half=%v got=%v diff=%v", f, h, got, diff)
		}
	}
}

func absf32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
