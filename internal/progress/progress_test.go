package progress

import "testing"

func TestParse_LastProcessedMarkerWins(t *testing.T) {
	text := `INFO starting up
Processing events 1-500
Processed 100 events
some unrelated line
Processed 250 events
`
	c := Parse(text)

	if c.TotalEvents != 500 {
		t.Errorf("TotalEvents = %d, want 500", c.TotalEvents)
	}
	if c.EventsProcessed != 250 {
		t.Errorf("EventsProcessed = %d, want 250", c.EventsProcessed)
	}
}

func TestParse_NoMarkers(t *testing.T) {
	c := Parse("nothing interesting here\nat all\n")

	if c.TotalEvents != 0 || c.EventsProcessed != 0 {
		t.Errorf("got %+v, want zero counts", c)
	}
}

func TestParse_FirstTotalMarkerWins(t *testing.T) {
	text := "Processing events 1-500\nProcessing events 501-900\n"

	if c := Parse(text); c.TotalEvents != 500 {
		t.Errorf("TotalEvents = %d, want 500", c.TotalEvents)
	}
}

func TestParse_Idempotent(t *testing.T) {
	text := "Processing events 1-10\nProcessed 7 events\n"

	first := Parse(text)
	second := Parse(text)

	if first != second {
		t.Errorf("repeated parse differs: %+v vs %+v", first, second)
	}
}
