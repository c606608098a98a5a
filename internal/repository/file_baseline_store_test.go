package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"MMDiag/internal/domain/models"
)

func TestFileBaselineStoreRoundtrip(t *testing.T) {
	store, err := NewFileBaselineStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBaselineStore: %v", err)
	}
	ctx := context.Background()

	b := &models.Baseline{
		Instrument: "AAPL",
		Type:       models.InstrumentEquity,
		Window:     63,
		MinObs:     21,
		Stats: map[string]models.DistributionStats{
			models.FeatureDarkPoolShare: {Mean: 0.38, Std: 0.04, N: 30},
		},
		History: map[string][]models.Observation{
			models.FeatureDarkPoolShare: {
				{Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Value: 0.38},
			},
		},
		ScoreHist: []models.ScorePoint{
			{Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Raw: 0.42},
		},
		ElapsedDays: 30,
		UpdatedAt:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Instrument != "AAPL" || got.ElapsedDays != 30 {
		t.Fatalf("loaded baseline mismatch: %+v", got)
	}
	if got.Stats[models.FeatureDarkPoolShare].N != 30 {
		t.Fatalf("stats lost in roundtrip: %+v", got.Stats)
	}
	if len(got.History[models.FeatureDarkPoolShare]) != 1 {
		t.Fatalf("history lost in roundtrip")
	}
	if len(got.ScoreHist) != 1 || got.ScoreHist[0].Raw != 0.42 {
		t.Fatalf("score history lost in roundtrip: %+v", got.ScoreHist)
	}
}

func TestFileBaselineStoreMissing(t *testing.T) {
	store, err := NewFileBaselineStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBaselineStore: %v", err)
	}
	if _, err := store.Load(context.Background(), "NOPE"); !errors.Is(err, models.ErrMissingBaseline) {
		t.Fatalf("err = %v, want ErrMissingBaseline", err)
	}
	ok, err := store.Exists(context.Background(), "NOPE")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v; want false, nil", ok, err)
	}
}

func TestFileBaselineStoreList(t *testing.T) {
	store, err := NewFileBaselineStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBaselineStore: %v", err)
	}
	ctx := context.Background()

	for _, sym := range []string{"MSFT", "AAPL", "SPY"} {
		if err := store.Save(ctx, &models.Baseline{Instrument: sym}); err != nil {
			t.Fatalf("Save %s: %v", sym, err)
		}
	}
	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"AAPL", "MSFT", "SPY"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List = %v, want %v", got, want)
		}
	}
}

func TestFileBaselineStoreOverwrite(t *testing.T) {
	store, err := NewFileBaselineStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBaselineStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, &models.Baseline{Instrument: "AAPL", ElapsedDays: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, &models.Baseline{Instrument: "AAPL", ElapsedDays: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ElapsedDays != 2 {
		t.Fatalf("elapsed days = %d, want 2 (latest save wins)", got.ElapsedDays)
	}
}
