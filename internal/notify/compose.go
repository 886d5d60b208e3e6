package notify

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucypulova/Elitearn/pkg/mailer"
)

// Attachment caps. Files over either limit still reach the buyer through the
// signed download links, so skipping here loses nothing.
const (
	maxSingleAttachBytes = 8 * 1024 * 1024
	maxTotalAttachBytes  = 15 * 1024 * 1024
)

// line is one purchased course with its creator, as loaded for composition.
type line struct {
	CourseID       int64
	Title          string
	Qty            int
	UnitPriceCents int64
	LineTotalCents int64
	CreatorID      int64
	CreatorEmail   string
}

// asset is one downloadable material of a purchased course.
type asset struct {
	ID       int64
	CourseID int64
	Title    string
	FilePath string
	MimeType string
	FileSize int64
}

// courseMaterials holds the signed links for one course's assets.
type courseMaterials struct {
	CourseTitle string
	Links       []materialLink
}

type materialLink struct {
	Title string
	URL   string
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func buyerSubject(orderNumber string) string {
	return "Purchase confirmation " + orderNumber
}

func buyerBody(orderNumber string, createdAt time.Time, totalCents int64, currency string, lines []line, materials []courseMaterials, attachmentCount int) string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("Thank you for your purchase.\n")
	fmt.Fprintf(&b, "Order: %s\n", orderNumber)
	if !createdAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", createdAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Total: %s %s\n", formatCents(totalCents), currency)

	b.WriteString("\nCourses:\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "- %s x%d at %s %s (line total %s %s)\n",
			l.Title, l.Qty, formatCents(l.UnitPriceCents), currency, formatCents(l.LineTotalCents), currency)
	}

	if len(materials) > 0 {
		b.WriteString("\nDownload links for your materials (valid for a limited time):\n")
		for _, m := range materials {
			fmt.Fprintf(&b, "\n%s:\n", m.CourseTitle)
			for _, link := range m.Links {
				fmt.Fprintf(&b, "- %s: %s\n", link.Title, link.URL)
			}
		}
	}

	b.WriteString("\n")
	if attachmentCount > 0 {
		fmt.Fprintf(&b, "The materials are attached to this message (%d files).\n", attachmentCount)
	} else {
		b.WriteString("Your course materials are available on the site under \"My Courses\".\n")
	}

	b.WriteString("\nThank you!\nElitearn\n")
	return b.String()
}

// storedBuyerBody composes the outbox copy of the receipt. Worker redelivery
// is text-only, so the stored copy must never claim attachments; the buyer
// falls back on the download links and "My Courses".
func storedBuyerBody(orderNumber string, createdAt time.Time, totalCents int64, currency string, lines []line, materials []courseMaterials) string {
	return buyerBody(orderNumber, createdAt, totalCents, currency, lines, materials, 0)
}

func sellerSubject(orderNumber string) string {
	return "New purchase: " + orderNumber
}

func sellerBody(orderNumber string, createdAt time.Time, buyerEmail, currency string, items []line) string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("There is a new purchase on Elitearn.\n")
	fmt.Fprintf(&b, "Order: %s\n", orderNumber)
	if !createdAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", createdAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Buyer: %s\n", buyerEmail)

	b.WriteString("\nYour courses in this order:\n")
	for _, l := range items {
		fmt.Fprintf(&b, "- %s x%d at %s %s\n", l.Title, l.Qty, formatCents(l.LineTotalCents), currency)
	}

	b.WriteString("\nElitearn\n")
	return b.String()
}

// safeDownloadName sanitizes an asset title into a filename an email client
// will accept.
func safeDownloadName(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}

// selectAttachments picks which materials ride along as attachments. Each
// file must fit the per-file cap, the running total must fit the cumulative
// cap, and files missing from storage are skipped without complaint. The
// recorded file size only pre-filters so obviously oversized files are never
// read; the caps hold against the bytes actually read.
func selectAttachments(assets []asset, baseDir string, readFile func(string) ([]byte, error)) []mailer.Attachment {
	var out []mailer.Attachment
	var total int64
	for _, a := range assets {
		if a.FileSize <= 0 || a.FileSize > maxSingleAttachBytes {
			continue
		}
		if total+a.FileSize > maxTotalAttachBytes {
			continue
		}
		path := a.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := readFile(path)
		if err != nil {
			continue
		}
		// The file may have changed on disk since its size was recorded.
		size := int64(len(content))
		if size == 0 || size > maxSingleAttachBytes || total+size > maxTotalAttachBytes {
			continue
		}
		name := a.Title
		if name == "" {
			name = fmt.Sprintf("material_%d", a.ID)
		}
		out = append(out, mailer.Attachment{
			Filename:    safeDownloadName(name),
			ContentType: a.MimeType,
			Content:     content,
		})
		total += size
	}
	return out
}
