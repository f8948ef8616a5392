package idhash

import (
	"testing"

	"solana-token-console/internal/domain"
)

func TestComputeActivityID(t *testing.T) {
	got := ComputeActivityID(domain.ActivityCreate, "Mint1", "Owner1", 1700000000000)
	want := "32d81ca3442a6d300303d66758b2dc81517a8160fc364a07abeac3dfca36eca2"
	if got != want {
		t.Errorf("ComputeActivityID() = %s, want %s", got, want)
	}

	if len(got) != 64 {
		t.Errorf("ComputeActivityID() length = %d, want 64", len(got))
	}
}

func TestComputeActivityID_DifferentInputs(t *testing.T) {
	base := ComputeActivityID(domain.ActivityCreate, "Mint", "Owner", 1000)

	// Different kind should produce different hash
	if base == ComputeActivityID(domain.ActivityUpdate, "Mint", "Owner", 1000) {
		t.Error("Different kind should produce different hash")
	}

	// Different mint should produce different hash
	if base == ComputeActivityID(domain.ActivityCreate, "OtherMint", "Owner", 1000) {
		t.Error("Different mint should produce different hash")
	}

	// Different identity should produce different hash
	if base == ComputeActivityID(domain.ActivityCreate, "Mint", "OtherOwner", 1000) {
		t.Error("Different identity should produce different hash")
	}

	// Different timestamp should produce different hash
	if base == ComputeActivityID(domain.ActivityCreate, "Mint", "Owner", 2000) {
		t.Error("Different created_at should produce different hash")
	}
}
