package engine

import (
	"time"

	"github.com/yamlbase/yamlbase/internal/dberrors"
)

// deadline enforces an optional per-query wall-clock limit, checked at
// coarse boundaries (per row group or per 10,000 scanned rows) rather
// than per row, matching the cooperative scheduling model (spec §5).
type deadline struct {
	at      time.Time
	enabled bool
	scanned int
}

func newDeadline(d time.Duration) *deadline {
	if d <= 0 {
		return &deadline{}
	}
	return &deadline{at: time.Now().Add(d), enabled: true}
}

const scanCheckInterval = 10000

// checkEvery should be called once per scanned row; it only actually
// samples the clock every scanCheckInterval calls.
func (d *deadline) checkEvery() error {
	if !d.enabled {
		return nil
	}
	d.scanned++
	if d.scanned%scanCheckInterval != 0 {
		return nil
	}
	return d.checkNow()
}

func (d *deadline) checkNow() error {
	if !d.enabled {
		return nil
	}
	if time.Now().After(d.at) {
		return dberrors.New(dberrors.KindQueryTimeout, "query exceeded its deadline")
	}
	return nil
}
