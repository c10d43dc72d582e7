package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ContentKey describes a fill by its values. A trade whose time could not
// be parsed is keyed by its source row instead, since its stored time is
// the ingestion instant.
func (t Trade) ContentKey() string {
	when := t.Time.UTC().Format(time.RFC3339Nano)
	if t.TimeDefaulted {
		when = "unparsed@" + strconv.Itoa(t.SourceRow)
	}
	return strings.Join([]string{
		strings.ToUpper(t.Pair),
		when,
		string(t.Side),
		t.Price.String(),
		t.Amount.String(),
		t.Total.String(),
		t.Fee.String(),
		t.Role,
	}, "|")
}

// AssignFingerprints sets Fingerprint on every trade that has none. Equal
// fills within one slice are told apart by their occurrence number, so two
// identical executions in one export are both kept while the same export
// read twice maps onto the same fingerprints.
func AssignFingerprints(trades []Trade) {
	seen := make(map[string]int, len(trades))
	for i := range trades {
		if trades[i].Fingerprint != "" {
			continue
		}
		key := trades[i].ContentKey()
		seen[key]++
		sum := sha256.Sum256([]byte(key + "#" + strconv.Itoa(seen[key])))
		trades[i].Fingerprint = hex.EncodeToString(sum[:])
	}
}
