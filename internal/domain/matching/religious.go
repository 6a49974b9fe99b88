package matching

// religiousLadder orders levels from most to least observant.
var religiousLadder = []string{
	"HAREDI_STRICT",
	"HAREDI",
	"HAREDI_MODERN",
	"DATI_LEUMI_TORANI",
	"DATI_LEUMI",
	"DATI_LEUMI_LITE",
	"MASORTI_SHOMER_SHABBAT",
	"MASORTI",
	"HILONI_MAZDAHE",
	"HILONI",
}

var religiousIndex = func() map[string]int {
	m := make(map[string]int, len(religiousLadder))
	for i, lvl := range religiousLadder {
		m[normalize(lvl)] = i
	}
	return m
}()

// ReligiousDistance returns how many ladder steps separate a and b. ok is
// false when either level is not on the ladder.
func ReligiousDistance(a, b string) (int, bool) {
	ia, okA := religiousIndex[normalize(a)]
	ib, okB := religiousIndex[normalize(b)]
	if !okA || !okB {
		return 0, false
	}
	d := ia - ib
	if d < 0 {
		d = -d
	}
	return d, true
}
