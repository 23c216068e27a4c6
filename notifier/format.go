package notifier

import (
	"fmt"
	"math"
	"strings"

	appconfig "tenderflow/config"
	"tenderflow/models"
)

// Formatter renders a high-value notice into a chat message. The lot list is
// capped and the title truncated because the delivery channel enforces a hard
// message-length ceiling; when even the capped rendering is too long an
// ultra-compact fallback is used.
type Formatter struct {
	maxLots    int
	titleMax   int
	messageMax int
}

func NewFormatter(cfg *appconfig.Config) *Formatter {
	maxLots := cfg.Pipeline.MaxAlertLots
	if maxLots <= 0 {
		maxLots = 3
	}
	titleMax := cfg.Pipeline.TitleMaxLen
	if titleMax <= 0 {
		titleMax = 160
	}
	messageMax := cfg.Pipeline.MessageMaxLen
	if messageMax <= 0 {
		messageMax = 3800
	}
	return &Formatter{maxLots: maxLots, titleMax: titleMax, messageMax: messageMax}
}

// Render produces the alert body. extra carries optional enrichment lines
// appended after the lot list.
func (f *Formatter) Render(n models.HighValueNotice, extra []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🏆 *High-value contract award* — %s\n\n", formatEUR(n.TotalValue))
	fmt.Fprintf(&b, "*Buyer:* %s (%s, %s)\n", n.BuyerName, n.BuyerCity, n.BuyerCountry)
	fmt.Fprintf(&b, "*Title:* %s\n", truncate(n.Title, f.titleMax))
	fmt.Fprintf(&b, "*Published:* %s\n\n", n.PublicationDate)

	shown := n.Lots
	if len(shown) > f.maxLots {
		shown = shown[:f.maxLots]
	}
	if len(shown) > 0 {
		b.WriteString("*Lots:*\n")
	}
	for i, lot := range shown {
		fmt.Fprintf(&b, "%d. %s — %s — %s (%s)\n",
			i+1, lot.LotID, formatEUR(lot.EURValue), lot.WinnerName, lot.WinnerCountry)
	}
	if rest := len(n.Lots) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "_+%d more lots_\n", rest)
	}

	for _, line := range extra {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n[View notice](%s)", n.NoticeURL)

	msg := b.String()
	if len(msg) > f.messageMax {
		return f.renderCompact(n)
	}
	return msg
}

// renderCompact is the minimal rendering used when the full message would
// exceed the channel ceiling.
func (f *Formatter) renderCompact(n models.HighValueNotice) string {
	return fmt.Sprintf("🏆 %s — %s — %s (%d lots)\n%s",
		n.PublicationID, formatEUR(n.TotalValue), truncate(n.BuyerName, 80),
		n.LotCount(), n.NoticeURL)
}

// PlainText strips the inline emphasis markers for the plain-text retry.
// Brackets stay; the link remains readable without markup.
func PlainText(msg string) string {
	msg = strings.ReplaceAll(msg, "*", "")
	return strings.ReplaceAll(msg, "_", "")
}

// truncate cuts a string to max runes, appending an ellipsis marker when it
// was shortened.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max > 3 {
		return string(runes[:max-3]) + "..."
	}
	return string(runes[:max])
}

// formatEUR renders a EUR amount with thousands separators, dropping cents;
// award sums at this scale never need them.
func formatEUR(v float64) string {
	whole := int64(math.Round(v))
	s := fmt.Sprintf("%d", whole)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := "€" + strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
