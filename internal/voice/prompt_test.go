package voice

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSystemPrompt(t *testing.T) {
	started := time.Date(2024, 11, 30, 14, 5, 0, 0, time.UTC)

	got := BuildSystemPrompt("", started, time.UTC)
	if !strings.HasPrefix(got, "General Instructions:\nYou are a friendly and professional voice assistant") {
		t.Errorf("BuildSystemPrompt() prefix = %q", got[:60])
	}
	if !strings.Contains(got, "If the patient mentions Sigma insurance, they mean Cigna insurance.") {
		t.Error("BuildSystemPrompt() missing insurance alias instruction")
	}
	wantSuffix := "\nAt the beginning of this call, the time and date was: Saturday, november 30, 2:05pm | saturday, november 30, 2:05pm"
	if !strings.HasSuffix(got, wantSuffix) {
		t.Errorf("BuildSystemPrompt() suffix = %q, want %q", got[len(got)-len(wantSuffix):], wantSuffix)
	}
}
