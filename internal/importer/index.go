package importer

import "github.com/noah-isme/student-registry-api/internal/models"

// Index tracks the CURPs already persisted and those accepted earlier in the
// current batch, and hands out registration codes. It is scoped to one import
// call and is not safe for concurrent use.
type Index struct {
	persisted map[string]struct{}
	batch     map[string]int

	prefix  string
	year    int
	lastSeq int
}

// NewIndex seeds the index with the stored CURPs and the highest registration
// sequence already used for year.
func NewIndex(persisted []string, prefix string, year, lastSeq int) *Index {
	idx := &Index{
		persisted: make(map[string]struct{}, len(persisted)),
		batch:     make(map[string]int),
		prefix:    prefix,
		year:      year,
		lastSeq:   lastSeq,
	}
	for _, curp := range persisted {
		idx.persisted[curp] = struct{}{}
	}
	return idx
}

// Duplicate reports whether curp was seen before. firstLine is the sheet line
// of the earlier occurrence, or 0 when the CURP is already stored.
func (x *Index) Duplicate(curp string) (firstLine int, dup bool) {
	if _, ok := x.persisted[curp]; ok {
		return 0, true
	}
	if line, ok := x.batch[curp]; ok {
		return line, true
	}
	return 0, false
}

// Commit records curp as taken by the row at line.
func (x *Index) Commit(curp string, line int) {
	if _, ok := x.batch[curp]; !ok {
		x.batch[curp] = line
	}
}

// Reserve returns the next registration code. A reserved code must be either
// persisted or handed back with Release before the next Reserve.
func (x *Index) Reserve() string {
	x.lastSeq++
	return models.RegistrationCode(x.prefix, x.year, x.lastSeq)
}

// Release returns the most recently reserved code so a rejected row does not
// consume it.
func (x *Index) Release() {
	x.lastSeq--
}

// Resync moves the sequence forward after another writer took codes.
func (x *Index) Resync(lastSeq int) {
	if lastSeq > x.lastSeq {
		x.lastSeq = lastSeq
	}
}

// MarkPersisted records curp as stored by another writer.
func (x *Index) MarkPersisted(curp string) {
	x.persisted[curp] = struct{}{}
}
