package tftp

import "testing"

func TestOptionTableEffectiveDefaults(t *testing.T) {
	tbl := NewOptionTable()
	if v := tbl.Effective(Blksize); v != DefaultBlksize {
		t.Errorf("blksize default: got %d want %d", v, DefaultBlksize)
	}
	if v := tbl.Effective(Timeout); v != DefaultTimeoutSeconds {
		t.Errorf("timeout default: got %d want %d", v, DefaultTimeoutSeconds)
	}
	if v := tbl.Effective(Tsize); v != DefaultTsize {
		t.Errorf("tsize default: got %d want %d", v, DefaultTsize)
	}
	if tbl.Active(Blksize) {
		t.Errorf("expected blksize inactive on empty table")
	}
}

func TestOptionTableMarkRequestedIsSticky(t *testing.T) {
	tbl := NewOptionTable()
	tbl.MarkRequested(Blksize, 1024)
	tbl.MarkRequested(Blksize, 9999) // second call must be a no-op
	if v := tbl.Effective(Blksize); v != 1024 {
		t.Errorf("got %d, want first-requested value 1024", v)
	}
}

func TestOptionTableCap(t *testing.T) {
	tbl := NewOptionTable()
	tbl.MarkRequested(Blksize, 65464)
	tbl.Cap(Blksize, 1468)
	if v := tbl.Effective(Blksize); v != 1468 {
		t.Errorf("got %d, want capped 1468", v)
	}

	// capping below the current value when max == 0 (no ceiling) must be a no-op.
	tbl2 := NewOptionTable()
	tbl2.MarkRequested(Blksize, 4096)
	tbl2.Cap(Blksize, 0)
	if v := tbl2.Effective(Blksize); v != 4096 {
		t.Errorf("got %d, want uncapped 4096", v)
	}
}

func TestOptionTableDisable(t *testing.T) {
	tbl := NewOptionTable()
	tbl.MarkRequested(Tsize, 0)
	tbl.Disable(Tsize)
	if tbl.Active(Tsize) {
		t.Errorf("expected tsize inactive after Disable")
	}
	if v := tbl.Effective(Tsize); v != DefaultTsize {
		t.Errorf("got %d, want default after disable", v)
	}
}

func TestOptionTableIterAcceptedPreservesOrder(t *testing.T) {
	tbl := NewOptionTable()
	tbl.MarkRequested(Timeout, 5)
	tbl.MarkRequested(Blksize, 1024)
	tbl.MarkRequested(Tsize, 0)

	got := tbl.IterAccepted()
	want := []OptionKind{Timeout, Blksize, Tsize}
	if len(got) != len(want) {
		t.Fatalf("got %d options, want %d", len(got), len(want))
	}
	for i, kind := range want {
		if got[i].Name != kind {
			t.Errorf("position %d: got %s want %s", i, got[i].Name, kind)
		}
	}
}

func TestNegotiateRequestOptionsAppliesRefuseAndCeiling(t *testing.T) {
	req := []RequestOption{
		{Name: Blksize, Value: "65464"},
		{Name: Timeout, Value: "10"},
		{Name: Tsize, Value: "0"},
	}
	policy := ServerOptionPolicy{
		BlksizeCeiling: 1468,
		Refuse:         map[OptionKind]bool{Tsize: true},
	}

	tbl := NegotiateRequestOptions(req, policy)
	if v := tbl.Effective(Blksize); v != 1468 {
		t.Errorf("blksize: got %d, want capped to 1468", v)
	}
	if !tbl.Active(Timeout) || tbl.Effective(Timeout) != 10 {
		t.Errorf("timeout: got active=%v value=%d", tbl.Active(Timeout), tbl.Effective(Timeout))
	}
	if tbl.Active(Tsize) {
		t.Errorf("expected tsize refused")
	}
}

func TestNegotiateRequestOptionsDropsOutOfRangeValues(t *testing.T) {
	req := []RequestOption{
		{Name: Blksize, Value: "7"},   // below minimum of 8
		{Name: Timeout, Value: "256"}, // above maximum of 255
		{Name: Tsize, Value: "not-a-number"},
	}
	tbl := NegotiateRequestOptions(req, ServerOptionPolicy{})
	if tbl.Active(Blksize) || tbl.Active(Timeout) || tbl.Active(Tsize) {
		t.Errorf("expected all out-of-range/unparseable options dropped, got table with some active")
	}
}

func TestOptionTableFromOAckIgnoresUnrequested(t *testing.T) {
	oack := []RequestOption{
		{Name: Blksize, Value: "1024"},
		{Name: Windowsize, Value: "4"},
	}
	requested := map[OptionKind]bool{Blksize: true}

	tbl := optionTableFromOAck(oack, requested)
	if !tbl.Active(Blksize) {
		t.Errorf("expected blksize active")
	}
	if tbl.Active(Windowsize) {
		t.Errorf("expected windowsize ignored since the client never requested it")
	}
}

func TestParseOptionKind(t *testing.T) {
	tests := map[string]OptionKind{
		"blksize":    Blksize,
		"BLKSIZE":    Blksize,
		"timeout":    Timeout,
		"tsize":      Tsize,
		"windowsize": Windowsize,
		"bogus":      unknownOption,
	}
	for name, want := range tests {
		if got := ParseOptionKind(name); got != want {
			t.Errorf("ParseOptionKind(%q): got %v want %v", name, got, want)
		}
	}
}
