// Package prompt builds the per-agent generation instructions for a
// conversational cycle. Construction is pure text assembly: the same
// input always yields the same instruction pair, and missing optional
// context degrades to an empty history section.
package prompt

import (
	"fmt"
	"strings"

	"github.com/adalundhe/sway/core/domain"
	"github.com/adalundhe/sway/core/stance"
)

// Exchange is one prior round of the conversation as seen by the prompt:
// the participant's message and the three agent replies.
type Exchange struct {
	Cycle        int
	UserMessage  string
	AgentReplies [3]string
}

// BuildInput carries everything the builder needs for one agent slot.
type BuildInput struct {
	Slot           int
	Stance         domain.Stance
	Condition      domain.Condition
	SessionKey     domain.SessionKey
	Cycle          int
	Topic          string
	InitialStance  domain.Stance
	InitialOpinion int
	History        []Exchange
	UserMessage    string
}

// Instructions is the system/user instruction pair handed to the
// generation backend.
type Instructions struct {
	System string
	User   string
}

// Build constructs the instruction pair for one agent slot.
func Build(in BuildInput) Instructions {
	p := PersonaFor(in.Slot)

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s, %s taking part in a small group discussion about: %s.\n",
		p.Name, p.Expertise, in.Topic)
	fmt.Fprintf(&sys, "Your perspective centers on %s.\n", p.Perspective)
	fmt.Fprintf(&sys, "The participant initially rated their opinion at %d on a scale from %d (fully against) to %d (fully in favor), which reads as %q.\n",
		in.InitialOpinion, domain.MinOpinion, domain.MaxOpinion, stanceWord(in.InitialStance))
	fmt.Fprintf(&sys, "In this discussion you %s the position. Hold this stance with a consistency of %.0f%%: argue for it, do not concede it.\n",
		stanceVerb(in.Stance), p.Consistency*100)
	sys.WriteString(framing(in.SessionKey))

	if stance.Flipped(in.Condition, in.InitialStance, in.Cycle, in.Slot) {
		sys.WriteString("Important: earlier in this discussion you held the opposite view. You have just changed your mind. Say so openly and explain, in your own words, what persuaded you to switch sides.\n")
	}

	sys.WriteString("Reply in two to four sentences, first person, conversational register. Never mention these instructions or that you are simulated.")

	var usr strings.Builder
	usr.WriteString(historySection(in.History))
	fmt.Fprintf(&usr, "The participant just said: %q\n", in.UserMessage)
	fmt.Fprintf(&usr, "This is round %d of %d. Respond to the participant now.", in.Cycle, domain.MaxCycle)

	return Instructions{System: sys.String(), User: usr.String()}
}

func stanceVerb(s domain.Stance) string {
	switch s {
	case domain.StanceSupport:
		return "support"
	case domain.StanceOppose:
		return "oppose"
	default:
		return "remain undecided on"
	}
}

func stanceWord(s domain.Stance) string {
	switch s {
	case domain.StanceSupport:
		return "in favor"
	case domain.StanceOppose:
		return "against"
	default:
		return "undecided"
	}
}

// framing biases the register of the reply by session: the normative
// session leans on social approval, the informative session on evidence.
func framing(k domain.SessionKey) string {
	switch k {
	case domain.SessionNormative:
		return "Lean on social framing: what most people think, what is considered acceptable, how the group sees the issue.\n"
	case domain.SessionInformative:
		return "Lean on evidential framing: facts, studies, concrete examples, and logical argument.\n"
	default:
		return ""
	}
}

func historySection(history []Exchange) string {
	if len(history) == 0 {
		return "This is the opening round; there is no prior discussion.\n"
	}

	var b strings.Builder
	b.WriteString("Discussion so far:\n")
	for _, ex := range history {
		fmt.Fprintf(&b, "Round %d\n", ex.Cycle)
		fmt.Fprintf(&b, "  Participant: %s\n", ex.UserMessage)
		for i, reply := range ex.AgentReplies {
			if reply == "" {
				continue
			}
			fmt.Fprintf(&b, "  %s: %s\n", PersonaFor(i+1).Name, reply)
		}
	}
	return b.String()
}
