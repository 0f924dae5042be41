package hypothesis

import (
	"strings"
	"text/template"
)

var (
	refinePrompt = template.Must(template.New("refine").Parse(`You are a Hypothesis Refinement Agent.

Task:
Given the following hypothesis, rewrite it to make it more specific,
measurable, and testable. Use clear metrics or conditions where possible.

Original hypothesis:
"{{.Hypothesis}}"

Output:
A single refined hypothesis that is concrete, falsifiable, and written
in one or two sentences.`))

	analyzePrompt = template.Must(template.New("analyze").Parse(`You are a Hypothesis Reflection Agent.

Task:
Critically evaluate the following refined hypothesis as if you are a peer reviewer
preparing it for a real-world experiment.

Refined hypothesis:
"{{.Hypothesis}}"

Analyze it on the following criteria:
1. **Clarity** – Is the hypothesis clearly stated and easy to understand?
2. **Specificity** – Does it define measurable metrics, timeframes, or success conditions?
3. **Testability** – Could it realistically be validated or falsified with an experiment?
4. **Assumptions** – Are there any hidden assumptions or biases?
5. **Actionability** – Can it guide a meaningful next experiment?

Output:
Provide a short, structured reflection in 3–5 paragraphs that includes:
- A summary of the hypothesis quality
- Two concrete strengths
- Two areas to improve
- One actionable suggestion for refinement or next steps.`))

	revisePrompt = template.Must(template.New("revise").Parse(`You are a Hypothesis Revision Agent.

Original hypothesis:
"{{.Original}}"

Reflection feedback:
"{{.Reflection}}"

Task:
Produce one revised hypothesis that integrates the reflection feedback
while remaining specific, measurable, and testable.`))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
