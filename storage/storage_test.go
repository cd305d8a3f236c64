package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/bytedance/sonic"

	"github.com/vnfma0218/habit-management/domain"
)

func TestDecodeHabitEntity(t *testing.T) {
	data := []byte(`{"odata.etag":"W/\"datetime'2025-03-01T08%3A00%3A00Z'\"","PartitionKey":"u1","RowKey":"h1","Name":"Read","WeeklyTarget":3,"TimeSlot":"evening","Icon":"📚","Color":"#E5D6FF","Position":20,"Active":true,"CreatedAt":"2025-03-01T08:00:00.0000000Z"}`)
	h, err := decodeHabitEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.ID != "h1" || h.TimeSlot != domain.Evening || h.Position != 20 || h.WeeklyTarget != 3 || !h.Active {
		t.Fatalf("unexpected habit: %+v", h)
	}
	if h.Version == "" {
		t.Fatalf("expected etag to be carried as version")
	}
	if !h.CreatedAt.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created at: %v", h.CreatedAt)
	}
}

func TestHabitEntityCarriesTypeAnnotations(t *testing.T) {
	h := domain.Habit{ID: "h1", Name: "Run", WeeklyTarget: 4, TimeSlot: domain.Morning, Icon: "🏃", Color: "#FFD6E5", Position: 10, Active: true, Version: "etag"}
	payload, err := sonic.Marshal(newHabitEntity("u1", h))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(payload)
	for _, want := range []string{`"PartitionKey":"u1"`, `"RowKey":"h1"`, `"Position@odata.type":"Edm.Int32"`, `"CreatedAt@odata.type":"Edm.DateTime"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Contains(body, "odata.etag") {
		t.Fatalf("etag must not be written back: %s", body)
	}
}

func TestPlacementUpdateOnlyTouchesPlacement(t *testing.T) {
	h := domain.Habit{ID: "h1", Name: "Run", TimeSlot: domain.Afternoon, Position: 30}
	payload, err := sonic.Marshal(newPlacementUpdate("u1", h))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := sonic.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fields) != 5 {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["TimeSlot"] != "afternoon" || fields["Position"] != float64(30) {
		t.Fatalf("unexpected placement: %v", fields)
	}
}

func TestDecodeCompletionEntity(t *testing.T) {
	c, err := decodeCompletionEntity([]byte(`{"PartitionKey":"u1","RowKey":"h1_2025-03-05","HabitId":"h1","Date":"2025-03-05"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.HabitID != "h1" || c.Date != "2025-03-05" {
		t.Fatalf("unexpected completion: %+v", c)
	}
	if key := newCompletionEntity("u1", c).RowKey; key != "h1_2025-03-05" {
		t.Fatalf("unexpected row key: %s", key)
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "all habits", got: habitsFilter("u1", ""), want: "PartitionKey eq 'u1'"},
		{name: "slot", got: habitsFilter("u1", domain.Morning), want: "PartitionKey eq 'u1' and TimeSlot eq 'morning'"},
		{name: "escaped", got: habitsFilter("o'brien", ""), want: "PartitionKey eq 'o''brien'"},
		{name: "range", got: completionsFilter("u1", "2025-03-03", "2025-03-09"), want: "PartitionKey eq 'u1' and Date ge '2025-03-03' and Date le '2025-03-09'"},
		{name: "open range", got: completionsFilter("u1", "", ""), want: "PartitionKey eq 'u1'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	if err := mapError(&azcore.ResponseError{StatusCode: 404}, "h1"); !errors.Is(err, domain.ErrHabitNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mapError(&azcore.ResponseError{StatusCode: 412}, ""); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	other := errors.New("boom")
	if err := mapError(other, "h1"); err != other {
		t.Fatalf("expected error passthrough, got %v", err)
	}
}
