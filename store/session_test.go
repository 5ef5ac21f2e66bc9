package store

import (
	"testing"

	"gridsim/engine"
)

func TestSaveAllLoadAllRoundtrip(t *testing.T) {
	st := setupTestStore(t)

	cfg := &engine.GridConfig{
		Item:               "BTC",
		Wallet:             "0x1111111111111111111111111111111111111111",
		BasePrice:          100,
		StepPct:            1,
		LevelsPerSide:      2,
		TotalInvestmentUSD: 1000,
	}
	sess := engine.NewSession(cfg, 500)
	price := 98.5
	sess.Tick(&price)

	sessions := map[string]*engine.GridSession{"BTC": sess}
	configs := map[string]*engine.GridConfig{"BTC": cfg}
	if err := st.Session().SaveAll(sessions, configs); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	gotSessions, gotConfigs, err := st.Session().LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	got, ok := gotSessions["BTC"]
	if !ok {
		t.Fatal("session BTC not restored")
	}
	if got.Item != "BTC" || got.Wallet != cfg.Wallet {
		t.Errorf("restored identity mismatch: item=%s wallet=%s", got.Item, got.Wallet)
	}
	if got.TickCount != sess.TickCount {
		t.Errorf("TickCount = %d, want %d", got.TickCount, sess.TickCount)
	}
	if len(got.Orders) != len(sess.Orders) {
		t.Errorf("orders = %d, want %d", len(got.Orders), len(sess.Orders))
	}
	if len(got.Fills) != 1 {
		t.Errorf("fills = %d, want 1", len(got.Fills))
	}
	if got.Position.PositionQty != sess.Position.PositionQty {
		t.Errorf("PositionQty = %v, want %v", got.Position.PositionQty, sess.Position.PositionQty)
	}
	if got.Budget != sess.Budget {
		t.Errorf("budget = %+v, want %+v", got.Budget, sess.Budget)
	}

	gotCfg, ok := gotConfigs["BTC"]
	if !ok {
		t.Fatal("config BTC not restored")
	}
	if gotCfg.StepPct != 1 || gotCfg.LevelsPerSide != 2 {
		t.Errorf("restored config mismatch: %+v", gotCfg)
	}
}

func TestSaveAllReplacesSnapshot(t *testing.T) {
	st := setupTestStore(t)

	a := engine.NewSession(&engine.GridConfig{Item: "A", BasePrice: 10}, 500)
	b := engine.NewSession(&engine.GridConfig{Item: "B", BasePrice: 20}, 500)

	if err := st.Session().SaveAll(
		map[string]*engine.GridSession{"A": a, "B": b},
		map[string]*engine.GridConfig{"A": a.Config, "B": b.Config},
	); err != nil {
		t.Fatal(err)
	}

	// The second dump no longer contains B; the snapshot is a full replace
	if err := st.Session().SaveAll(
		map[string]*engine.GridSession{"A": a},
		map[string]*engine.GridConfig{"A": a.Config},
	); err != nil {
		t.Fatal(err)
	}

	sessions, _, err := st.Session().LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("snapshot holds %d sessions, want 1", len(sessions))
	}
	if _, ok := sessions["B"]; ok {
		t.Error("stale session B survived the replace")
	}
}

func TestDeleteItem(t *testing.T) {
	st := setupTestStore(t)

	a := engine.NewSession(&engine.GridConfig{Item: "A", BasePrice: 10}, 500)
	if err := st.Session().SaveAll(
		map[string]*engine.GridSession{"A": a},
		map[string]*engine.GridConfig{"A": a.Config},
	); err != nil {
		t.Fatal(err)
	}

	if err := st.Session().DeleteItem("A"); err != nil {
		t.Fatal(err)
	}
	sessions, configs, err := st.Session().LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 || len(configs) != 0 {
		t.Errorf("rows survived DeleteItem: %d sessions, %d configs", len(sessions), len(configs))
	}

	// Deleting a missing item is not an error
	if err := st.Session().DeleteItem("nope"); err != nil {
		t.Errorf("DeleteItem on missing item: %v", err)
	}
}
