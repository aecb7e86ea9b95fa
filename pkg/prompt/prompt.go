// Package prompt generates the interviewer system instruction and detects
// the natural conclusion of an interview from turn transcripts.
package prompt

import (
	"fmt"
	"strings"
)

// Greeting is the synthetic user turn sent right after setup acknowledgement
// so the model opens the interview deterministically.
func Greeting(language string) string {
	if strings.EqualFold(language, "bg") {
		return "Здравейте!"
	}
	return "Hello!"
}

// InstructionOptions parameterize the generated system instruction.
type InstructionOptions struct {
	Position   string
	Difficulty string
	Language   string

	// CVText is the candidate's résumé text, already extracted; optional.
	CVText string

	// Interviewer display names; both optional, defaulted per language.
	InterviewerNameEN string
	InterviewerNameBG string
}

// GenerateInstruction builds the system instruction for the AI interviewer.
// The conclusion guidance deliberately uses phrases the conclusion table
// recognizes, so a well-behaved model ends the session on its own.
func GenerateInstruction(opts InstructionOptions) string {
	name := opts.InterviewerNameEN
	if name == "" {
		name = "Alex"
	}
	languageDirective := "Conduct the entire interview in English."
	if strings.EqualFold(opts.Language, "bg") {
		if opts.InterviewerNameBG != "" {
			name = opts.InterviewerNameBG
		}
		languageDirective = "Conduct the entire interview in Bulgarian. All questions, reactions, and the conclusion must be in Bulgarian."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an experienced HR interviewer conducting a job interview for a %s position.\n\n", opts.Position)
	fmt.Fprintf(&b, "## Your Role\nYou are a professional interviewer at a reputable tech company. Your name is %s.\n", name)
	b.WriteString("You should sound natural, professional, and human-like in your responses.\n\n")
	fmt.Fprintf(&b, "## Language\n%s\n\n", languageDirective)
	b.WriteString("## Interview Guidelines\n")
	b.WriteString("1. Start by briefly introducing yourself and asking the candidate to introduce themselves\n")
	fmt.Fprintf(&b, "2. Ask 5-7 relevant questions appropriate for a %s role\n", opts.Position)
	b.WriteString("3. Listen carefully to responses and ask follow-up questions when needed\n")
	b.WriteString("4. Keep your responses concise - this is a conversation, not a lecture\n")
	b.WriteString("5. Be professional but conversational\n\n")
	fmt.Fprintf(&b, "## Difficulty Level: %s\n%s\n", opts.Difficulty, difficultyBehavior(opts.Difficulty))
	fmt.Fprintf(&b, "## Position-Specific Focus\n%s\n", positionContext(opts.Position))
	if strings.TrimSpace(opts.CVText) != "" {
		fmt.Fprintf(&b, "## Candidate CV\nThe candidate provided the following CV. Ground some of your questions in it.\n%s\n\n", strings.TrimSpace(opts.CVText))
	}
	b.WriteString("## Concluding the Interview\n")
	b.WriteString("When you have gathered enough information (after 5-7 questions), naturally conclude by:\n")
	b.WriteString("- Thanking the candidate for their time\n")
	b.WriteString("- Mentioning that \"we have all the information we need\"\n")
	b.WriteString("- Saying something like \"we'll be in touch with next steps\"\n\n")
	b.WriteString("## Important Notes\n")
	fmt.Fprintf(&b, "- Do NOT mention that you are an AI - you are %s, the interviewer\n", name)
	b.WriteString("- Keep responses SHORT and natural - avoid long monologues\n")
	b.WriteString("- React naturally to the candidate's answers\n")
	b.WriteString("- If the candidate gives a poor answer, probe deeper but remain professional\n")
	b.WriteString("- If the candidate is clearly struggling, you may offer gentle encouragement\n\n")
	b.WriteString("Begin the interview now by introducing yourself briefly.\n")
	return b.String()
}

func difficultyBehavior(difficulty string) string {
	switch strings.ToLower(difficulty) {
	case "easy", "chill":
		return `- Be friendly, encouraging, and supportive
- Allow the candidate time to think
- If they struggle, offer hints or rephrase questions
- Focus on making them comfortable
- Ask straightforward questions without tricks
`
	case "hard", "stress":
		return `- Be professional but challenging
- Ask probing follow-up questions
- Press for specific examples and details
- Challenge vague or incomplete answers
- Include some curveball or scenario-based questions
- Maintain time pressure in your tone
`
	default:
		return `- Be professional and balanced
- Ask clear, direct questions
- Follow up on interesting points
- Maintain a neutral but friendly tone
- Mix easy and moderately challenging questions
`
	}
}

func positionContext(position string) string {
	p := strings.ToLower(position)
	switch {
	case strings.Contains(p, "java") || strings.Contains(p, "backend") || strings.Contains(p, "software"):
		return `Focus areas for this technical role:
- Object-oriented programming concepts
- Backend framework knowledge
- Database and SQL understanding
- API design and REST principles
- Problem-solving approach
- Code quality and testing practices
`
	case strings.Contains(p, "qa") || strings.Contains(p, "test") || strings.Contains(p, "quality"):
		return `Focus areas for this QA role:
- Testing methodologies and strategies
- Test case design and execution
- Bug reporting and tracking
- Automation experience
- Understanding of SDLC
- Attention to detail examples
`
	case strings.Contains(p, "project") || strings.Contains(p, "manager") || strings.Contains(p, "pm"):
		return `Focus areas for this management role:
- Project planning and execution
- Team leadership and communication
- Stakeholder management
- Risk identification and mitigation
- Agile/Scrum experience
- Conflict resolution examples
`
	case strings.Contains(p, "frontend") || strings.Contains(p, "ui") || strings.Contains(p, "react"):
		return `Focus areas for this frontend role:
- HTML, CSS, JavaScript proficiency
- Modern framework experience (React, Vue, Angular)
- Responsive design principles
- Browser compatibility handling
- Performance optimization
- User experience sensibility
`
	case strings.Contains(p, "devops") || strings.Contains(p, "cloud") || strings.Contains(p, "infrastructure"):
		return `Focus areas for this DevOps role:
- CI/CD pipeline experience
- Cloud platforms (AWS, GCP, Azure)
- Containerization (Docker, Kubernetes)
- Infrastructure as Code
- Monitoring and logging
- Security best practices
`
	default:
		return `Focus areas for this role:
- Relevant technical skills and experience
- Problem-solving capabilities
- Communication skills
- Team collaboration
- Learning and adaptability
- Career goals and motivation
`
	}
}
