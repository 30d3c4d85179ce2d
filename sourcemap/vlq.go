// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"errors"
	"strings"
)

const (
	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift
	vlqBaseMask        = vlqBase - 1
	vlqContinuationBit = vlqBase
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index [256]int8

func init() {
	for i := range base64Index {
		base64Index[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		base64Index[base64Chars[i]] = int8(i)
	}
}

// vlqMaxShift is the shift of the last digit a 32-bit VLQ value can have.
const vlqMaxShift = 30

var (
	errTruncatedVLQ = errors.New("truncated base64 VLQ")
	errOverflowVLQ  = errors.New("base64 VLQ exceeds 32 bits")
)

// encodeVLQ appends the base64 VLQ encoding of value to sb.
func encodeVLQ(sb *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}
	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift
		if vlq > 0 {
			digit |= vlqContinuationBit
		}
		sb.WriteByte(base64Chars[digit])
		if vlq == 0 {
			return
		}
	}
}

// decodeVLQ decodes one base64 VLQ value from s starting at pos.
// It returns the value and the position just after it.
func decodeVLQ(s string, pos int) (int, int, error) {
	result, shift := 0, 0
	for {
		if pos >= len(s) {
			return 0, pos, errTruncatedVLQ
		}
		digit := base64Index[s[pos]]
		if digit < 0 {
			return 0, pos, errors.New("invalid base64 character " + string(s[pos]))
		}
		pos++
		result += int(digit&vlqBaseMask) << shift
		if digit&vlqContinuationBit == 0 {
			break
		}
		shift += vlqBaseShift
		if shift > vlqMaxShift {
			return 0, pos, errOverflowVLQ
		}
	}
	value := result >> 1
	if result&1 == 1 {
		value = -value
	}
	return value, pos, nil
}
