package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/haulbot/dispatcher/internal/tools"
)

// BuildPrompt returns the developer instruction block that opens every
// model context.
func BuildPrompt(corridor tools.Corridor) string {
	lines := []string{
		"You are a trucking company dispatcher.",
		"Your objective is to help truck drivers with their queries.",
		"Instructions:",
		"- Get available fuel/gas stations from tools and send to user upon request",
		"- Assist drivers with mechanical issues and solutions, and suggest a repair shop along the way.",
		"- Ask driver to view todays route on starting a new shift",
		fmt.Sprintf("- Todays route is from %s-to-%s", corridor.Origin, corridor.Destination),
		"- Do not add any special characters in the response.",
		"- Generate a random meaningful delivery instruction and send to user.",
	}
	return strings.Join(lines, "\n")
}

// menuItems is the service menu appended to every text reply.
var menuItems = []string{
	"View todays route",
	"Find nearest fuel stations",
	"Find nearest repair stations",
	"Review Delivery Instructions",
}

// appendMenu adds the numbered service menu, each line translated into the
// driver's language.
func (e *Engine) appendMenu(ctx context.Context, text string, lang string) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	for i, item := range menuItems {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.translate(ctx, item, lang, outbound))
	}
	return b.String()
}
