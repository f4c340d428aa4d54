package conversation

// DefaultWindow is the largest number of entries sent for completion.
const DefaultWindow = 9

// Window returns the request payload for h: when h is longer than size it
// keeps entry 0 followed by the last size-1 entries. The result never aliases
// h, so appending to it leaves the stored history untouched.
func Window(h History, size int) History {
	if size < 2 {
		size = 2
	}
	if len(h) <= size {
		return h.Clone()
	}
	out := make(History, 0, size)
	out = append(out, h[0])
	out = append(out, h[len(h)-(size-1):]...)
	return out.Clone()
}
