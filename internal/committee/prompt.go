package committee

import (
	"fmt"
	"strings"

	"github.com/Bharath-code/deckslayer/internal/persona"
)

// AgentPrompt is the prompt one reviewer receives for a single deck.
func AgentPrompt(p persona.Persona, text string) string {
	return fmt.Sprintf("PROTOCOL: %s\nAGENT_CARD: %s\nTASK: %s %s",
		persona.Protocol, p.Card.JSON(), p.Task, text)
}

// CompareAgentPrompt is the prompt one reviewer receives for one deck of a
// comparison.
func CompareAgentPrompt(p persona.Persona, text string) string {
	return fmt.Sprintf("PROTOCOL: %s\nAGENT_CARD: %s\nTASK: %s\nDECK: %s",
		persona.Protocol, p.Card.JSON(), p.CompareTask, text)
}

// SynthesisPrompt merges the committee's opinions, in persona order, into the
// orchestrator request.
func SynthesisPrompt(orchestrator persona.Card, personas []persona.Persona, opinions []Opinion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROTOCOL: %s\n", persona.Protocol)
	fmt.Fprintf(&b, "ORCHESTRATOR_CARD: %s\n\n", orchestrator.JSON())
	fmt.Fprintf(&b, "You have received reports from %s A2A-compliant agents on a pitch deck:\n\n", countWord(len(opinions)))
	for _, op := range opinions {
		fmt.Fprintf(&b, "REPORT [%s]: %s\n", op.Label, op.Text)
	}
	b.WriteString("\nTASK: Synthesize these into a coordinated A2A diagnostic report.\n\n")
	b.WriteString("Metadata for result:\n")
	fmt.Fprintf(&b, "Protocol: %s\n", persona.Protocol)
	fmt.Fprintf(&b, "Consulted: %s\n", strings.Join(persona.Names(personas), ", "))
	fmt.Fprintf(&b, "Orchestrator: %s\n", orchestrator.Name)
	return b.String()
}

// Deck is one named document of a comparison.
type Deck struct {
	Name string
	Text string
}

// ComparisonPrompt asks for a head-to-head verdict. opinions[i] holds the
// committee's opinions on decks[i], in persona order.
func ComparisonPrompt(personas []persona.Persona, decks [2]Deck, opinions [][]Opinion) string {
	var b strings.Builder
	b.WriteString("You are the Chief Investment Officer synthesizing a comparative analysis of two pitch decks.\n")
	for i, letter := range []string{"A", "B"} {
		fmt.Fprintf(&b, "\nDECK %s (%s):\n", letter, decks[i].Name)
		for j, op := range opinions[i] {
			fmt.Fprintf(&b, "%s: %s\n", personas[j].Focus, op.Text)
		}
	}
	b.WriteString(`
Generate a comprehensive comparison report. Be adversarial and decisive.
- Assign scores 0-100 for each deck
- Determine a clear winner (avoid ties unless truly equal)
- Provide category-by-category breakdown
- List all red flags from both decks
- Give a definitive VC investment recommendation`)
	return b.String()
}

// RebuttalPrompt casts the risk reviewer as an interrogator answering the
// founder's defence of the killer question.
func RebuttalPrompt(r RebuttalRequest) string {
	return fmt.Sprintf(`ROLE: SARAH (The Skeptic / GP Agent)
PERSONA: Brutal, skeptical, looking for "The Big Lie", highly experienced VC.

CONTEXT OF THE DECK:
%s

KILLER QUESTION YOU ASKED:
"%s"

FOUNDER'S DEFENSE:
"%s"

TASK:
Provide a sharp, adversarial rebuttal based on their answer.
Point out the logical flaws, the execution risks, or why a VC would still say NO.
Keep it short (max 3 sentences), punchy, and professional yet brutal.

RESPONSE TEMPLATE:
"Sarah sighs. [Your rebuttal here]" or "Sarah narrows her eyes. [Your rebuttal here]"`,
		r.Context, r.Question, r.Answer)
}

func countWord(n int) string {
	switch n {
	case 1:
		return "one"
	case 2:
		return "two"
	case 3:
		return "three"
	default:
		return fmt.Sprint(n)
	}
}
