package changes

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Summary limits.
const (
	MaxOperatorsShown = 20
	MaxSamples        = 3
)

// Summary is the notification text for a run.
type Summary struct {
	Subject string
	Body    string
}

// Summarize renders the run summary. attachment is the change report file
// name, empty when none was written.
func Summarize(r *Report, attachment, outDir string) Summary {
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}
	if r.Empty() {
		return Summary{
			Subject: "[FDA] รอบนี้ไม่มีผู้ประกอบการหรือสินค้าใหม่",
			Body: fmt.Sprintf("สรุปผลรอบรันล่าสุด:\n- ไม่พบผู้ประกอบการใหม่\n- ไม่พบสินค้าใหม่\n\nโฟลเดอร์เอาต์พุต: %s\n",
				outDir),
		}
	}

	var lines []string
	if n := len(r.NewOperators); n > 0 {
		lines = append(lines, fmt.Sprintf("ผู้ประกอบการใหม่: %d ราย", n))
		for _, op := range head(r.NewOperators, MaxOperatorsShown) {
			lines = append(lines, fmt.Sprintf("  - %s (ตัวอย่างสินค้า: %s)", op, strings.Join(r.Samples(op, MaxSamples), ", ")))
		}
		if n > MaxOperatorsShown {
			lines = append(lines, fmt.Sprintf("  ... และอื่น ๆ อีก %d ราย", n-MaxOperatorsShown))
		}
	}
	if groups := r.NewItems(); len(groups) > 0 {
		lines = append(lines, fmt.Sprintf("ผู้ประกอบการเดิมที่มีสินค้าใหม่: %d ราย", len(groups)))
		shown := groups
		if len(shown) > MaxOperatorsShown {
			shown = shown[:MaxOperatorsShown]
		}
		for _, g := range shown {
			samples := make([]string, 0, MaxSamples)
			for _, rec := range g.Items {
				if len(samples) == MaxSamples {
					break
				}
				samples = append(samples, rec.DisplayName())
			}
			lines = append(lines, fmt.Sprintf("  - %s (+%d รายการใหม่, ตัวอย่าง: %s)", g.Operator, len(g.Items), strings.Join(samples, ", ")))
		}
		if len(groups) > MaxOperatorsShown {
			lines = append(lines, fmt.Sprintf("  ... และอื่น ๆ อีก %d ราย", len(groups)-MaxOperatorsShown))
		}
	}

	var b strings.Builder
	b.WriteString("พบความเปลี่ยนแปลงจากรอบรันล่าสุด\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
	if attachment != "" {
		fmt.Fprintf(&b, "แนบไฟล์: %s\n", filepath.Base(attachment))
	}
	fmt.Fprintf(&b, "โฟลเดอร์เอาต์พุต: %s\n", outDir)
	return Summary{
		Subject: "[FDA] สรุปความเปลี่ยนแปลง: ผู้ประกอบการใหม่ / สินค้าใหม่",
		Body:    b.String(),
	}
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
