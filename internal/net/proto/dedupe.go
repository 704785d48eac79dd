package proto

// DedupeWindow is how many sequence numbers are remembered per sender and
// message type.
const DedupeWindow = 32

// Dedupe filters datagrams the link duplicated. It keys on (FromID, Type)
// and remembers the last DedupeWindow sequence numbers of each. Not safe
// for concurrent use.
type Dedupe struct {
	recent map[dedupeKey]*seqWindow
}

type dedupeKey struct {
	from uint8
	kind MsgType
}

func NewDedupe() *Dedupe {
	return &Dedupe{recent: make(map[dedupeKey]*seqWindow)}
}

// FirstSeen records h and reports whether it had not been seen before.
func (d *Dedupe) FirstSeen(h Header) bool {
	key := dedupeKey{from: h.FromID, kind: h.Type}
	w, ok := d.recent[key]
	if !ok {
		w = &seqWindow{}
		d.recent[key] = w
	}
	return w.insert(h.Seq)
}

// Reset forgets every sender's history.
func (d *Dedupe) Reset() {
	clear(d.recent)
}

type seqWindow struct {
	seqs [DedupeWindow]uint16
	n    int
	next int
}

func (w *seqWindow) insert(seq uint16) bool {
	for i := 0; i < w.n; i++ {
		if w.seqs[i] == seq {
			return false
		}
	}
	w.seqs[w.next] = seq
	w.next = (w.next + 1) % DedupeWindow
	if w.n < DedupeWindow {
		w.n++
	}
	return true
}
