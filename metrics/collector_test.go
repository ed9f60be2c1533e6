package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("/dev/ttyACM0", "redis", "fs", "sess-001")

	c.IncFramesDecoded()
	c.IncFramesDecoded()
	c.AddBytesDiscarded(5)
	c.AddBytesDiscarded(0)
	c.IncDecodeErrors()
	c.IncEmptyPackets()
	c.IncLogLine("INFO")
	c.IncLogLine("INFO")
	c.IncLogLine("ERROR")
	c.IncUnknownHash()
	c.IncCommandSubmitted()
	c.IncCommandSubmitted()
	c.IncResponseMatched()
	c.IncUnknownResponse()
	c.IncSendFailure()
	c.IncCommandAbandoned()
	c.IncCommandExpired()
	c.AddCommandsClosed(3)
	c.IncTableReload()
	c.IncTableReloadFailure()
	c.IncForwardFailure()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"FramesDecoded", s.FramesDecoded, 2},
		{"BytesDiscarded", s.BytesDiscarded, 5},
		{"DecodeErrors", s.DecodeErrors, 1},
		{"EmptyPackets", s.EmptyPackets, 1},
		{"LogLinesEmitted", s.LogLinesEmitted, 3},
		{"UnknownHashes", s.UnknownHashes, 1},
		{"CommandsSubmitted", s.CommandsSubmitted, 2},
		{"ResponsesMatched", s.ResponsesMatched, 1},
		{"UnknownResponses", s.UnknownResponses, 1},
		{"SendFailures", s.SendFailures, 1},
		{"CommandsAbandoned", s.CommandsAbandoned, 1},
		{"CommandsExpired", s.CommandsExpired, 1},
		{"CommandsClosed", s.CommandsClosed, 3},
		{"TableReloads", s.TableReloads, 1},
		{"TableReloadFailures", s.TableReloadFailures, 1},
		{"ForwardFailures", s.ForwardFailures, 1},
		{"ArchiveWriteSuccess", s.ArchiveWriteSuccess, 1},
		{"ArchiveWriteFailure", s.ArchiveWriteFailure, 1},
		{"LinesByLevel[INFO]", s.LinesByLevel["INFO"], 2},
		{"LinesByLevel[ERROR]", s.LinesByLevel["ERROR"], 1},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("%s = %d, want %d", check.name, check.got, check.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("/dev/ttyUSB1", "webhook", "s3", "sess-42")
	s := c.Snapshot()

	if s.Port != "/dev/ttyUSB1" {
		t.Errorf("Port = %q, want %q", s.Port, "/dev/ttyUSB1")
	}
	if s.Forwarder != "webhook" {
		t.Errorf("Forwarder = %q, want %q", s.Forwarder, "webhook")
	}
	if s.ArchiveBackend != "s3" {
		t.Errorf("ArchiveBackend = %q, want %q", s.ArchiveBackend, "s3")
	}
	if s.SessionID != "sess-42" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "sess-42")
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("p", "", "", "s")
	c.IncFramesDecoded()
	c.IncLogLine("WARNING")

	s1 := c.Snapshot()

	c.IncFramesDecoded()
	c.IncLogLine("WARNING")

	if s1.FramesDecoded != 1 {
		t.Errorf("s1.FramesDecoded = %d, want 1 (snapshot should be frozen)", s1.FramesDecoded)
	}
	if s1.LinesByLevel["WARNING"] != 1 {
		t.Errorf("s1.LinesByLevel[WARNING] = %d, want 1", s1.LinesByLevel["WARNING"])
	}

	// Mutating the snapshot map must not reach the collector.
	s1.LinesByLevel["WARNING"] = 999
	s2 := c.Snapshot()
	if s2.LinesByLevel["WARNING"] != 2 {
		t.Errorf("s2.LinesByLevel[WARNING] = %d, want 2", s2.LinesByLevel["WARNING"])
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncFramesDecoded()
	c.AddBytesDiscarded(3)
	c.IncDecodeErrors()
	c.IncEmptyPackets()
	c.IncLogLine("INFO")
	c.IncUnknownHash()
	c.IncCommandSubmitted()
	c.IncResponseMatched()
	c.IncUnknownResponse()
	c.IncSendFailure()
	c.IncCommandAbandoned()
	c.IncCommandExpired()
	c.AddCommandsClosed(1)
	c.IncTableReload()
	c.IncTableReloadFailure()
	c.IncForwardFailure()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()

	s := c.Snapshot()
	if s.FramesDecoded != 0 {
		t.Errorf("nil collector snapshot FramesDecoded = %d, want 0", s.FramesDecoded)
	}
	if s.LinesByLevel != nil {
		t.Errorf("nil collector snapshot LinesByLevel should be nil, got %v", s.LinesByLevel)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("p", "", "", "s")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncFramesDecoded()
				c.IncLogLine("DEBUG")
				c.IncResponseMatched()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.FramesDecoded != want {
		t.Errorf("FramesDecoded = %d, want %d", s.FramesDecoded, want)
	}
	if s.LinesByLevel["DEBUG"] != want {
		t.Errorf("LinesByLevel[DEBUG] = %d, want %d", s.LinesByLevel["DEBUG"], want)
	}
	if s.ResponsesMatched != want {
		t.Errorf("ResponsesMatched = %d, want %d", s.ResponsesMatched, want)
	}
}
