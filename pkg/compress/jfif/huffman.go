package jfif

import "fmt"

// huffCodeTable is the encoder-side derivation of a huffmanSpec: for every
// symbol, its code bits (right-justified) and code length.
type huffCodeTable struct {
	codes [256]uint32
	sizes [256]byte
}

// build assigns canonical codes in lexicographic (length, order-of-values)
// order, the same derivation DHT receivers perform.
func (t *huffCodeTable) build(spec *huffmanSpec) {
	code := uint32(0)
	k := 0
	for i := 0; i < 16; i++ {
		for j := byte(0); j < spec.count[i]; j++ {
			t.codes[spec.values[k]] = code
			t.sizes[spec.values[k]] = byte(i + 1)
			code++
			k++
		}
		code <<= 1
	}
}

// optimizeHuffmanSpec builds a length-limited (16 bit) optimal Huffman table
// from symbol frequencies collected during the first encoding pass. A
// reserved 257th symbol with frequency one guarantees that no real symbol is
// assigned the all-ones code.
func optimizeHuffmanSpec(freq *[257]uint32) huffmanSpec {
	var codesize [257]int
	var others [257]int
	for i := range others {
		others[i] = -1
	}
	freq[256] = 1

	for {
		c1, c2 := -1, -1
		v := ^uint32(0)
		for i := 0; i <= 256; i++ {
			if freq[i] != 0 && freq[i] <= v {
				v = freq[i]
				c1 = i
			}
		}
		v = ^uint32(0)
		for i := 0; i <= 256; i++ {
			if i != c1 && freq[i] != 0 && freq[i] <= v {
				v = freq[i]
				c2 = i
			}
		}
		if c2 < 0 {
			break
		}

		freq[c1] += freq[c2]
		freq[c2] = 0

		codesize[c1]++
		for others[c1] >= 0 {
			c1 = others[c1]
			codesize[c1]++
		}
		others[c1] = c2
		codesize[c2]++
		for others[c2] >= 0 {
			c2 = others[c2]
			codesize[c2]++
		}
	}

	var bits [33]int
	for i := 0; i <= 256; i++ {
		if codesize[i] > 0 {
			bits[codesize[i]]++
		}
	}

	// T.81 Annex K.2 (IJG) adjustment, not package-merge: fold code lengths
	// deeper than 16 back into the tree by moving a pair up and a shorter
	// code down. The limited lengths are valid but not necessarily the
	// optimal length-limited code.
	for i := 32; i > 16; i-- {
		for bits[i] > 0 {
			j := i - 2
			for bits[j] == 0 {
				j--
			}
			bits[i] -= 2
			bits[i-1]++
			bits[j+1] += 2
			bits[j]--
		}
	}

	// Drop the reserved symbol: it owns one code at the deepest level.
	i := 16
	for bits[i] == 0 {
		i--
	}
	bits[i]--

	var spec huffmanSpec
	for l := 1; l <= 16; l++ {
		spec.count[l-1] = byte(bits[l])
	}
	for l := 1; l <= 32; l++ {
		for sym := 0; sym < 256; sym++ {
			if codesize[sym] == l {
				spec.values = append(spec.values, byte(sym))
			}
		}
	}
	return spec
}

// huffTable is the decoder-side derivation: an 8-bit fast lookup plus the
// canonical min/max-code arrays for codes of 9..16 bits.
type huffTable struct {
	ac      bool
	lookup  [256]uint16 // symbol<<8 | length, 0 when the prefix is longer than 8 bits
	mincode [17]int32
	maxcode [17]int32 // -1 when no codes of that length
	valptr  [17]int32
	values  [256]byte
}

// buildHuffTable validates a DHT payload and derives the decode tables.
func buildHuffTable(count *[16]byte, values []byte, ac bool) (*huffTable, error) {
	total := 0
	for _, c := range count {
		total += int(c)
	}
	if total == 0 || total > 256 || total != len(values) {
		return nil, fmt.Errorf("%w: %d codes for %d values", StatusBadDHTCounts, total, len(values))
	}

	h := &huffTable{ac: ac}
	copy(h.values[:], values)

	code := int32(0)
	k := int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(count[l-1])
		if n == 0 {
			h.mincode[l] = 0
			h.maxcode[l] = -1
		} else {
			h.valptr[l] = k
			h.mincode[l] = code
			code += n
			k += n
			h.maxcode[l] = code - 1
		}
		if code > int32(1)<<l {
			return nil, fmt.Errorf("%w: code overflow at length %d", StatusBadDHTCounts, l)
		}
		code <<= 1
	}

	// Fast path: every 8-bit prefix of a code with length <= 8 resolves the
	// symbol and its length directly.
	k = 0
	for l := 1; l <= 8; l++ {
		for j := int32(0); j < int32(count[l-1]); j++ {
			c := (h.mincode[l] + j) << (8 - l)
			entry := uint16(h.values[k])<<8 | uint16(l)
			for fill := int32(0); fill < 1<<(8-l); fill++ {
				h.lookup[c+fill] = entry
			}
			k++
		}
	}
	return h, nil
}

// decode resolves one symbol from the top bits of a 16-bit window. It
// returns the symbol and the number of bits consumed, or a length of 0 when
// no code matches (a corrupt stream).
func (h *huffTable) decode(window uint32) (symbol byte, length int) {
	if e := h.lookup[window>>8]; e != 0 {
		return byte(e >> 8), int(e & 0xFF)
	}
	for l := 9; l <= 16; l++ {
		if h.maxcode[l] < 0 {
			continue
		}
		code := int32(window >> (16 - l))
		if code <= h.maxcode[l] {
			return h.values[h.valptr[l]+code-h.mincode[l]], l
		}
	}
	return 0, 0
}
