package model

import (
	"testing"
	"time"
)

func TestProposalValidate(t *testing.T) {
	target := 5.0
	p := Proposal{SourceID: "src", Priority: 1, TargetPower: &target, Lifetime: time.Minute}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.SourceID = ""
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for empty source id")
	}
	p.SourceID = "src"
	p.Bounds = &PowerBounds{Lower: 5, Upper: -5}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}

func TestProposalExpiry(t *testing.T) {
	now := time.Now()
	p := Proposal{SourceID: "src", CreatedAt: now, Lifetime: time.Minute}
	if p.Expired(now.Add(30 * time.Second)) {
		t.Fatal("proposal expired too early")
	}
	if !p.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("proposal should have expired")
	}

	forever := Proposal{SourceID: "src", CreatedAt: now}
	if forever.Expired(now.Add(24 * time.Hour)) {
		t.Fatal("zero lifetime must never expire")
	}
}
