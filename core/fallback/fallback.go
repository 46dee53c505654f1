// Package fallback holds the pre-authored agent responses substituted
// when live generation fails or times out. Selection is a total function
// over the three stances.
package fallback

import "github.com/adalundhe/sway/core/domain"

const supportText = "I keep coming back to the same conclusion: the case in favor " +
	"is simply stronger. The benefits we have discussed are concrete and the " +
	"objections mostly describe risks that can be managed. Weighing both sides, " +
	"I think supporting this position is the reasonable choice, and nothing said " +
	"so far has given me a compelling reason to change my mind."

const opposeText = "Having thought this through again, I still cannot agree. The " +
	"downsides are real and they fall on people who have little say in the matter, " +
	"while the claimed benefits rest on assumptions that have not held up well. " +
	"Until someone addresses those problems directly, I have to stay against this " +
	"position, and the discussion so far has only reinforced that."

const neutralText = "Honestly, I can see merit on both sides of this. Some of the " +
	"arguments in favor are persuasive, but the concerns raised against are not " +
	"trivial either. I would want to see better evidence before committing either " +
	"way, so for now I am keeping an open mind and weighing what each of you says."

// ForStance returns the canned paragraph for a stance. Unknown values fall
// through to the neutral text so a displayable response always exists.
func ForStance(s domain.Stance) string {
	switch s {
	case domain.StanceSupport:
		return supportText
	case domain.StanceOppose:
		return opposeText
	default:
		return neutralText
	}
}
