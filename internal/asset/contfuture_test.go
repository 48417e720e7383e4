package asset

import "testing"

func TestActiveSymbolRollsBeforeExpiration(t *testing.T) {
	mes := NewContFuture("MES")

	wellBefore := thirdFriday(2024, 3).AddDate(0, 0, -30)
	resolved := mes.ActiveSymbol(wellBefore, 5)
	if resolved.Expiration != thirdFriday(2024, 3).Format("2006-01-02") {
		t.Fatalf("expected March contract well before roll, got %s", resolved.Expiration)
	}

	withinRoll := thirdFriday(2024, 3).AddDate(0, 0, -2)
	resolved = mes.ActiveSymbol(withinRoll, 5)
	if resolved.Expiration != thirdFriday(2024, 6).Format("2006-01-02") {
		t.Fatalf("expected June contract within roll window, got %s", resolved.Expiration)
	}
}

func TestActiveSymbolPreservesSymbolAndMultiplier(t *testing.T) {
	mes := NewContFuture("MES")
	resolved := mes.ActiveSymbol(thirdFriday(2024, 3).AddDate(0, 0, -30), 5)
	if resolved.Symbol != "MES" || resolved.Multiplier != 5 || resolved.Type != Future {
		t.Fatalf("unexpected resolved asset: %+v", resolved)
	}
}
