// Package synthesis turns session state into generation-collaborator
// requests and validates the JSON that comes back.
package synthesis

import (
	"fmt"
	"strings"
)

// Request is the text pair sent to the generation collaborator together
// with the response variant the caller must validate against.
type Request struct {
	SystemInstruction string
	UserPayload       string
	Variant           Variant
}

// Input carries everything the builder needs about the session. The
// serialized answers block comes straight from the accumulator and is a
// pure function of accumulated state.
type Input struct {
	OriginalInput     string
	SerializedAnswers string
	Round             int
	TotalRounds       int
	Language          string
}

const (
	systemDirect = "You rewrite vague requests into polished, reusable prompts. " +
		"Respond with a single JSON object: {\"generated_text\": string}."

	systemQuestions = "You help clarify vague prompt requests by asking targeted questions. " +
		"Respond with a single JSON object: {\"questions\": [{\"topic\": string, \"prompt\": string, " +
		"\"kind\": \"select\"|\"text\"|\"textarea\", \"options\": [{\"text\": string, \"emoji\": string}], " +
		"\"allows_custom\": bool}]}."

	systemPreliminary = "You draft a usable prompt from partial clarifications. It may be refined further. " +
		"Respond with a single JSON object: {\"preliminary_prompt\": string}."

	systemFinal = "You synthesize a finished, reusable prompt from the request and its clarifications. " +
		"Respond with a single JSON object: {\"enhanced_prompt\": string, \"lazy_tweaks\": [string]}."

	systemAnalysis = "You score prompt quality and propose follow-up questions. " +
		"Respond with a single JSON object: {\"score\": number 0-100, " +
		"\"score_label\": \"poor\"|\"fair\"|\"good\"|\"excellent\", \"questions\": [...]}. " +
		"Questions use the same shape as clarifying questions."

	systemImprovement = "You revise an existing prompt according to instructions. " +
		"Respond with a single JSON object: {\"improved_prompt\": string}."
)

// BuildDirect is the no-questions request: the payload carries only the
// original input and nothing else.
func BuildDirect(originalInput string) Request {
	return Request{
		SystemInstruction: systemDirect,
		UserPayload:       strings.TrimSpace(originalInput),
		Variant:           VariantDirect,
	}
}

// BuildQuestions requests a clarifying-question batch for the current round
func BuildQuestions(in Input) Request {
	variant := VariantFirstRoundQuestion
	if in.Round > 1 {
		variant = VariantNextRoundQuestion
	}
	var b strings.Builder
	writeHeader(&b, in)
	if in.Round == 1 {
		fmt.Fprintf(&b, "Ask one question per topic, in order: %s.\n", strings.Join(firstRoundTopics, ", "))
	} else {
		b.WriteString("Ask deeper follow-up questions based on the answers so far. Use fresh topic keys.\n")
	}
	return Request{
		SystemInstruction: systemQuestions,
		UserPayload:       b.String(),
		Variant:           variant,
	}
}

// BuildPreliminary requests a usable-but-not-final draft after a round
func BuildPreliminary(in Input) Request {
	var b strings.Builder
	writeHeader(&b, in)
	b.WriteString("Draft the best prompt possible from the answers gathered so far.\n")
	return Request{
		SystemInstruction: systemPreliminary,
		UserPayload:       b.String(),
		Variant:           VariantPreliminaryResult,
	}
}

// BuildFinal requests the finished prompt from all accumulated answers
func BuildFinal(in Input) Request {
	var b strings.Builder
	writeHeader(&b, in)
	b.WriteString("Produce the final polished prompt, plus up to four one-word tweak suggestions.\n")
	return Request{
		SystemInstruction: systemFinal,
		UserPayload:       b.String(),
		Variant:           VariantFinalResult,
	}
}

// BuildAnalysis requests a quality verdict on the current prompt text along
// with the next iteration's questions.
func BuildAnalysis(in Input, currentText string) Request {
	var b strings.Builder
	writeHeader(&b, in)
	if strings.TrimSpace(currentText) != "" {
		b.WriteString("Current prompt under analysis:\n")
		b.WriteString(strings.TrimSpace(currentText))
		b.WriteString("\n")
	}
	return Request{
		SystemInstruction: systemAnalysis,
		UserPayload:       b.String(),
		Variant:           VariantAnalysis,
	}
}

// BuildImprovement requests a revision of the current prompt using the
// latest round of answers.
func BuildImprovement(in Input, currentText string) Request {
	var b strings.Builder
	writeHeader(&b, in)
	b.WriteString("Prompt to improve:\n")
	b.WriteString(strings.TrimSpace(currentText))
	b.WriteString("\nRevise it using the answers above.\n")
	return Request{
		SystemInstruction: systemImprovement,
		UserPayload:       b.String(),
		Variant:           VariantImprovement,
	}
}

// BuildTweak requests a named one-shot adjustment ("make funnier") of an
// already generated prompt. Round and iteration counters are not involved.
func BuildTweak(existingText, tweak, language string) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "language: %s\n", languageOrDefault(language))
	fmt.Fprintf(&b, "tweak: %s\n", strings.TrimSpace(tweak))
	b.WriteString("Prompt to revise:\n")
	b.WriteString(strings.TrimSpace(existingText))
	b.WriteString("\n")
	return Request{
		SystemInstruction: systemImprovement,
		UserPayload:       b.String(),
		Variant:           VariantImprovement,
	}
}

func writeHeader(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "original request: %s\n", strings.TrimSpace(in.OriginalInput))
	fmt.Fprintf(b, "round: %d of %d\n", in.Round, in.TotalRounds)
	fmt.Fprintf(b, "language: %s\n", languageOrDefault(in.Language))
	if in.SerializedAnswers != "" {
		b.WriteString("answers so far:\n")
		b.WriteString(in.SerializedAnswers)
		b.WriteString("\n")
	}
}

func languageOrDefault(language string) string {
	if strings.TrimSpace(language) == "" {
		return "en"
	}
	return language
}
