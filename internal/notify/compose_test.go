package notify

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{15000, "150.00"},
		{5, "0.05"},
		{0, "0.00"},
		{199, "1.99"},
		{-150, "-1.50"},
	}
	for _, tt := range tests {
		if got := formatCents(tt.cents); got != tt.want {
			t.Errorf("formatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestSafeDownloadName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Material.pdf", "My_Material.pdf"},
		{"report-v2_final.PDF", "report-v2_final.PDF"},
		{"", "file"},
		{"   ", "file"},
		{"///", "file"},
	}
	for _, tt := range tests {
		if got := safeDownloadName(tt.in); got != tt.want {
			t.Errorf("safeDownloadName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuyerBody(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	lines := []line{
		{CourseID: 1, Title: "Go Basics", Qty: 1, UnitPriceCents: 5000, LineTotalCents: 5000},
		{CourseID: 2, Title: "SQL Deep Dive", Qty: 2, UnitPriceCents: 2500, LineTotalCents: 5000},
	}
	materials := []courseMaterials{
		{CourseTitle: "Go Basics", Links: []materialLink{{Title: "Slides", URL: "https://example.test/api/public/download/tok"}}},
	}

	body := buyerBody("ORD-2026-123456", createdAt, 10000, "EUR", lines, materials, 2)

	for _, want := range []string{
		"ORD-2026-123456",
		"Total: 100.00 EUR",
		"Go Basics x1",
		"SQL Deep Dive x2",
		"Slides: https://example.test/api/public/download/tok",
		"attached to this message (2 files)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("buyer body missing %q:\n%s", want, body)
		}
	}
}

func TestBuyerBodyWithoutAttachments(t *testing.T) {
	body := buyerBody("ORD-2026-123456", time.Time{}, 0, "EUR", nil, nil, 0)
	if !strings.Contains(body, "My Courses") {
		t.Errorf("buyer body without attachments should point at the site:\n%s", body)
	}
	if strings.Contains(body, "Date:") {
		t.Errorf("zero created_at must not render a date line:\n%s", body)
	}
}

func TestSellerBody(t *testing.T) {
	items := []line{{CourseID: 1, Title: "Go Basics", Qty: 1, LineTotalCents: 5000}}
	body := sellerBody("ORD-2026-123456", time.Time{}, "buyer@example.test", "EUR", items)

	for _, want := range []string{"ORD-2026-123456", "buyer@example.test", "Go Basics x1 at 50.00 EUR"} {
		if !strings.Contains(body, want) {
			t.Errorf("seller body missing %q:\n%s", want, body)
		}
	}
}

func TestSelectAttachments(t *testing.T) {
	const mib = 1024 * 1024
	assets := []asset{
		{ID: 1, Title: "small", FilePath: "a.pdf", FileSize: 1 * mib},
		{ID: 2, Title: "too big", FilePath: "b.pdf", FileSize: 9 * mib},
		{ID: 3, Title: "missing", FilePath: "gone.pdf", FileSize: 1 * mib},
		{ID: 4, Title: "empty", FilePath: "c.pdf", FileSize: 0},
		{ID: 5, Title: "fits", FilePath: "d.pdf", FileSize: 7 * mib},
		{ID: 6, Title: "overflows total", FilePath: "e.pdf", FileSize: 8 * mib},
	}
	sizeByFile := map[string]int{"a.pdf": 1 * mib, "b.pdf": 9 * mib, "c.pdf": 0, "d.pdf": 7 * mib, "e.pdf": 8 * mib}
	readFile := func(path string) ([]byte, error) {
		if strings.Contains(path, "gone") {
			return nil, fmt.Errorf("no such file")
		}
		return make([]byte, sizeByFile[filepath.Base(path)]), nil
	}

	got := selectAttachments(assets, ".", readFile)

	var names []string
	for _, a := range got {
		names = append(names, a.Filename)
	}
	want := []string{"small", "fits"}
	if len(names) != len(want) {
		t.Fatalf("selected %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("selected %v, want %v", names, want)
		}
	}
}

// A file can grow on disk after its size was recorded; the caps must hold
// against what was actually read, not against the stale record.
func TestSelectAttachmentsGrownFile(t *testing.T) {
	const mib = 1024 * 1024
	assets := []asset{
		{ID: 1, Title: "grew past file cap", FilePath: "a.pdf", FileSize: 1 * mib},
		{ID: 2, Title: "still accurate", FilePath: "b.pdf", FileSize: 7 * mib},
		{ID: 3, Title: "grew past total cap", FilePath: "c.pdf", FileSize: 1 * mib},
		{ID: 4, Title: "truncated to empty", FilePath: "d.pdf", FileSize: 1 * mib},
	}
	sizeByFile := map[string]int{"a.pdf": 9 * mib, "b.pdf": 7 * mib, "c.pdf": 8*mib + 1, "d.pdf": 0}
	readFile := func(path string) ([]byte, error) {
		return make([]byte, sizeByFile[filepath.Base(path)]), nil
	}

	got := selectAttachments(assets, ".", readFile)

	if len(got) != 1 || got[0].Filename != "still_accurate" {
		var names []string
		for _, a := range got {
			names = append(names, a.Filename)
		}
		t.Fatalf("selected %v, want [still_accurate]", names)
	}
}

// The outbox keeps the copy the worker would redeliver. Redelivery carries no
// attachments, so the stored body must not claim any.
func TestStoredBuyerBodyOmitsAttachmentWording(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	lines := []line{{CourseID: 1, Title: "Go Basics", Qty: 1, UnitPriceCents: 5000, LineTotalCents: 5000}}
	materials := []courseMaterials{
		{CourseTitle: "Go Basics", Links: []materialLink{{Title: "Slides", URL: "https://example.test/api/public/download/tok"}}},
	}

	sent := buyerBody("ORD-2026-123456", createdAt, 5000, "EUR", lines, materials, 1)
	stored := storedBuyerBody("ORD-2026-123456", createdAt, 5000, "EUR", lines, materials)

	if !strings.Contains(sent, "attached to this message") {
		t.Fatalf("synchronous body should mention attachments:\n%s", sent)
	}
	if strings.Contains(stored, "attached to this message") {
		t.Errorf("stored body must not mention attachments:\n%s", stored)
	}
	for _, want := range []string{"Slides: https://example.test/api/public/download/tok", "My Courses"} {
		if !strings.Contains(stored, want) {
			t.Errorf("stored body missing %q:\n%s", want, stored)
		}
	}
}
