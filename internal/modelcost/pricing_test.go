package modelcost

import "testing"

func TestEstimateTextHeuristic(t *testing.T) {
	in := make([]byte, 4000)
	out := make([]byte, 2000)
	for i := range in {
		in[i] = 'a'
	}
	for i := range out {
		out[i] = 'b'
	}

	est := EstimateText(string(in), string(out), "gpt-4o")
	if est.InputTokens != 1000 {
		t.Fatalf("expected 1000 input tokens, got %d", est.InputTokens)
	}
	if est.OutputTokens != 500 {
		t.Fatalf("expected 500 output tokens, got %d", est.OutputTokens)
	}
	want := 1.0*0.0025 + 0.5*0.01
	if diff := est.CostUSD - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected cost %f, got %f", want, est.CostUSD)
	}
}

func TestUnknownModelFallsBack(t *testing.T) {
	est := EstimateText("abcd", "", "some-future-model")
	if est.Model != DefaultModel {
		t.Fatalf("expected fallback to %s, got %s", DefaultModel, est.Model)
	}
	if est.InputTokens != 1 {
		t.Fatalf("expected 1 token, got %d", est.InputTokens)
	}
	if est.CostUSD <= 0 {
		t.Fatal("fallback must still produce an estimate")
	}
}

func TestFromTokensPrefersReportedCounts(t *testing.T) {
	est := FromTokens(1234, 567, "gpt-4o-mini")
	if est.InputTokens != 1234 || est.OutputTokens != 567 {
		t.Fatalf("reported counts must pass through, got %d/%d", est.InputTokens, est.OutputTokens)
	}
}

func TestEmptyTextIsZeroTokens(t *testing.T) {
	est := EstimateText("", "", "gpt-4o")
	if est.InputTokens != 0 || est.OutputTokens != 0 || est.CostUSD != 0 {
		t.Fatalf("expected zero estimate, got %+v", est)
	}
}
