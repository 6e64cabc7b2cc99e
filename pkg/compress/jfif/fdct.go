package jfif

// Forward DCT, 13-bit fixed point, rows then columns. The output is the
// standard unnormalized JPEG coefficient scale (DC = 8 * mean of the
// level-shifted samples), so quantization tables apply directly.

const (
	fdctConstBits = 13
	fdctRowBits   = 2

	fix0298631336 = 2446
	fix0390180644 = 3196
	fix0541196100 = 4433
	fix0765366865 = 6270
	fix0899976223 = 7373
	fix1175875602 = 9633
	fix1501321110 = 12299
	fix1847759065 = 15137
	fix1961570560 = 16069
	fix2053119869 = 16819
	fix2562915447 = 20995
	fix3072711026 = 25172
)

func fdctDescale(x int32, n uint) int32 {
	return (x + (1 << (n - 1))) >> n
}

// fdct1d transforms one 8-sample vector in place at unit stride semantics;
// the caller handles descaling of the outputs.
func fdct1d(s *[8]int32) {
	t0 := s[0] + s[7]
	t7 := s[0] - s[7]
	t1 := s[1] + s[6]
	t6 := s[1] - s[6]
	t2 := s[2] + s[5]
	t5 := s[2] - s[5]
	t3 := s[3] + s[4]
	t4 := s[3] - s[4]

	t10 := t0 + t3
	t13 := t0 - t3
	t11 := t1 + t2
	t12 := t1 - t2

	u1 := (t12 + t13) * fix0541196100
	s[2] = u1 + t13*fix0765366865
	s[6] = u1 - t12*fix1847759065

	u1 = t4 + t7
	u2 := t5 + t6
	u3 := t4 + t6
	u4 := t5 + t7
	z5 := (u3 + u4) * fix1175875602

	t4 *= fix0298631336
	t5 *= fix2053119869
	t6 *= fix3072711026
	t7 *= fix1501321110
	u1 *= -fix0899976223
	u2 *= -fix2562915447
	u3 = u3*-fix1961570560 + z5
	u4 = u4*-fix0390180644 + z5

	s[0] = t10 + t11
	s[4] = t10 - t11
	s[1] = t7 + u1 + u4
	s[3] = t6 + u2 + u3
	s[5] = t5 + u2 + u4
	s[7] = t4 + u1 + u3
}

// fdct transforms a level-shifted 8x8 block in natural order.
func fdct(b *[64]int32) {
	var v [8]int32

	for row := 0; row < 8; row++ {
		q := b[row*8 : row*8+8]
		copy(v[:], q)
		fdct1d(&v)
		q[0] = v[0] << fdctRowBits
		q[4] = v[4] << fdctRowBits
		for _, i := range [6]int{1, 2, 3, 5, 6, 7} {
			q[i] = fdctDescale(v[i], fdctConstBits-fdctRowBits)
		}
	}

	for col := 0; col < 8; col++ {
		for i := 0; i < 8; i++ {
			v[i] = b[i*8+col]
		}
		fdct1d(&v)
		b[col] = fdctDescale(v[0], fdctRowBits+3)
		b[4*8+col] = fdctDescale(v[4], fdctRowBits+3)
		for _, i := range [6]int{1, 2, 3, 5, 6, 7} {
			b[i*8+col] = fdctDescale(v[i], fdctConstBits+fdctRowBits+3)
		}
	}
}

// quantizeBlock divides the transformed block by the quantization table with
// symmetric rounding and emits the result in zig-zag order.
func quantizeBlock(b *[64]int32, qt *[64]int32, dst *[64]int16) {
	for i := 0; i < 64; i++ {
		n := zigzag[i]
		j := b[n]
		q := qt[n]
		if j < 0 {
			j = -j + (q >> 1)
			if j < q {
				dst[i] = 0
			} else {
				dst[i] = int16(-(j / q))
			}
		} else {
			j += q >> 1
			if j < q {
				dst[i] = 0
			} else {
				dst[i] = int16(j / q)
			}
		}
	}
}
