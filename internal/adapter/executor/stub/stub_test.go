package stub

import (
	"context"
	"testing"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

func TestExecuteDefaultsToSuccess(t *testing.T) {
	e := New(0)
	result, err := e.Execute(context.Background(), nil, domain.AccountData{Email: "a@example.com"}, domain.KindResume, domain.ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.TransitionSuccess {
		t.Errorf("Status = %v, want Success", result.Status)
	}
}

func TestExecuteFollowsScriptThenHolds(t *testing.T) {
	e := New(0)
	e.Script("a@example.com",
		domain.TransitionResult{Status: domain.TransitionImageCaptchaTransient},
		domain.TransitionResult{Status: domain.TransitionSuccess},
	)
	account := domain.AccountData{Email: "a@example.com"}

	r1, _ := e.Execute(context.Background(), nil, account, domain.KindPause, domain.ExecuteOptions{})
	if r1.Status != domain.TransitionImageCaptchaTransient {
		t.Fatalf("call 1 = %v", r1.Status)
	}
	r2, _ := e.Execute(context.Background(), nil, account, domain.KindPause, domain.ExecuteOptions{})
	if r2.Status != domain.TransitionSuccess {
		t.Fatalf("call 2 = %v", r2.Status)
	}
	r3, _ := e.Execute(context.Background(), nil, account, domain.KindPause, domain.ExecuteOptions{})
	if r3.Status != domain.TransitionSuccess {
		t.Fatalf("call 3 (held) = %v", r3.Status)
	}
}
