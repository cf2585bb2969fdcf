package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name  string
	every time.Duration
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

type periodicStub struct{ stubJob }

func (p *periodicStub) Every() time.Duration { return p.every }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry, err := NewRegistry(jobA, jobB)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order: %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "sweep"}, &stubJob{name: "sweep"}); err == nil {
		t.Fatal("expected duplicate name to fail")
	}
	registry, _ := NewRegistry()
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job to fail")
	}
	if err := registry.Register(&stubJob{}); err == nil {
		t.Fatal("expected unnamed job to fail")
	}
}

func TestCadenceOf(t *testing.T) {
	if got := cadenceOf(&stubJob{name: "a"}); got != 0 {
		t.Fatalf("plain job should run every cycle, got %v", got)
	}
	if got := cadenceOf(&periodicStub{stubJob{name: "b", every: time.Hour}}); got != time.Hour {
		t.Fatalf("expected hourly cadence, got %v", got)
	}
}
