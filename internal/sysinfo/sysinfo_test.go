package sysinfo

import (
	"os"
	"testing"
)

func TestCollect(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	s, err := c.Collect()
	if err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}

	hostname, _ := os.Hostname()
	if s.Hostname != hostname {
		t.Errorf("Expected hostname %s, got %s", hostname, s.Hostname)
	}
	if s.CPUCores <= 0 {
		t.Errorf("Expected positive cpu cores, got %d", s.CPUCores)
	}
	if s.TotalMemoryBytes == 0 {
		t.Error("Expected total memory to be reported")
	}
	if s.UsedDiskBytes > s.TotalDiskBytes {
		t.Errorf("Used disk %d exceeds total %d", s.UsedDiskBytes, s.TotalDiskBytes)
	}
	if s.CollectedAt.IsZero() {
		t.Error("Expected collection time to be set")
	}
}
