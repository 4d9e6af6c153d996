package canvas

// BlendMode is the compositing operator a brush applies.
// All arithmetic is on premultiplied 8-bit values.
type BlendMode uint8

const (
	// BlendSourceOver paints the source over the destination: S + D*(1-Sa).
	BlendSourceOver BlendMode = iota
	// BlendDestinationOut clears the destination where the source is
	// opaque: D*(1-Sa).
	BlendDestinationOut
)

// String returns the canvas composite-operation name of the mode.
func (m BlendMode) String() string {
	switch m {
	case BlendSourceOver:
		return "source-over"
	case BlendDestinationOut:
		return "destination-out"
	default:
		return "unknown"
	}
}

type blendFunc func(sr, sg, sb, sa, dr, dg, db, da byte) (r, g, b, a byte)

func (m BlendMode) fn() blendFunc {
	if m == BlendDestinationOut {
		return blendDestinationOut
	}
	return blendSourceOver
}

func blendSourceOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return addDiv255(sr, mulDiv255(dr, invSa)),
		addDiv255(sg, mulDiv255(dg, invSa)),
		addDiv255(sb, mulDiv255(db, invSa)),
		addDiv255(sa, mulDiv255(da, invSa))
}

func blendDestinationOut(_, _, _, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return mulDiv255(dr, invSa), mulDiv255(dg, invSa), mulDiv255(db, invSa), mulDiv255(da, invSa)
}

// blendSpan composites a premultiplied source colour through an 8-bit
// coverage mask onto dst, which holds len(cov) RGBA pixels.
func blendSpan(dst []byte, cov []byte, sr, sg, sb, sa byte, fn blendFunc) {
	for i, c := range cov {
		if c == 0 {
			continue
		}
		o := i * 4
		r, g, b, a := sr, sg, sb, sa
		if c != 255 {
			r, g, b, a = mulDiv255(r, c), mulDiv255(g, c), mulDiv255(b, c), mulDiv255(a, c)
		}
		dst[o], dst[o+1], dst[o+2], dst[o+3] = fn(r, g, b, a, dst[o], dst[o+1], dst[o+2], dst[o+3])
	}
}

// mulDiv255 returns a*b/255 rounded.
func mulDiv255(a, b byte) byte {
	return byte((uint16(a)*uint16(b) + 127) / 255)
}

func addDiv255(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}
