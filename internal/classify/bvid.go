// Package classify turns a raw URL or bare id string into a model.UrlKind,
// and carries the aid<->bvid bijection the clip resolver needs once it has
// picked a canonical id to query with.
package classify

import "strings"

// The aid<->bvid transform used by the production site: fold the aid into
// a fixed-width window, XOR it against a magic constant, then splice the
// base-58 digits of the result into a 9-character template at a fixed,
// non-sequential set of positions. encodeMap[i] is the bvid slot that
// receives the i-th (least-significant-first) base-58 digit.
const (
	bvidXorCode int64 = 23442827791579
	bvidMaxAid  int64 = 1 << 51
	bvidAlpha         = "FcwAPNKTMug3GV5Lj7EJnHpWsx4tb8haYeviqBz6rkCy12mUSDQX9RdoZf"
)

var bvidEncodeMap = [9]int{8, 7, 0, 5, 1, 3, 2, 4, 6}

// AidToBvid converts an av id to its bvid. aid must be in [1, bvidMaxAid).
func AidToBvid(aid int64) string {
	var buf [9]byte
	tmp := (bvidMaxAid | aid) ^ bvidXorCode
	base := int64(len(bvidAlpha))
	for _, pos := range bvidEncodeMap {
		buf[pos] = bvidAlpha[tmp%base]
		tmp /= base
	}
	return "BV1" + string(buf[:])
}

// BvidToAid is the inverse of AidToBvid. It returns an error if bvid is not
// exactly 12 characters long ("BV1" + 9 alphabet characters) or contains a
// character outside bvidAlpha.
func BvidToAid(bvid string) (int64, error) {
	bvid = strings.TrimSpace(bvid)
	if len(bvid) != 12 || !strings.HasPrefix(strings.ToUpper(bvid[:3]), "BV1") {
		return 0, &FormatError{Input: bvid, Reason: "bvid must be 12 characters starting with BV1"}
	}
	body := bvid[3:]
	base := int64(len(bvidAlpha))
	var tmp int64
	for i := len(bvidEncodeMap) - 1; i >= 0; i-- {
		slot := bvidEncodeMap[i]
		idx := strings.IndexByte(bvidAlpha, body[slot])
		if idx < 0 {
			return 0, &FormatError{Input: bvid, Reason: "invalid bvid character"}
		}
		tmp = tmp*base + int64(idx)
	}
	return (tmp ^ bvidXorCode) &^ bvidMaxAid, nil
}

// FormatError reports a malformed id the classifier or bvid codec could not
// interpret.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return "classify: " + e.Reason + ": " + e.Input
}
