package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/tools"

	"showcase/deps"
	"showcase/repair"
)

const generatorTemplate = `Today is {{.today}}.
You are a senior React engineer building polished UI components with Tailwind CSS and shadcn/ui primitives.
Every answer is rendered live in a sandboxed browser preview, so the code must run as written.

OUTPUT FORMAT:
- Put private reasoning inside <think>...</think>. It is never shown as chat text.
- Put a short explanation for the user in plain text outside any tag.
- Put the code in exactly one <files> block:

<files entry="/App.tsx">
<file path="/App.tsx">
...source...
</file>
<file path="/components/Widget.tsx">
...source...
</file>
</files>

- Paths are absolute from the project root. The entry file must default-export a React component.
- A single component may instead be sent inside <component>...</component>.

AVAILABLE MODULES:
- UI primitives, import from "@/components/ui/<name>": {{.primitives}}
- The cn() helper from "@/lib/utils".
- Packages that are always installed: {{.packages}}
- Any other npm package is installed from its import, pin nothing.

RULES:
- Use Tailwind utility classes for all styling, support light and dark themes with the dark: variant.
- Do not import {{.forbidden}}. Draw icons with inline SVG.
- Keep JSX attribute strings on one line.
- Give every component sensible default props so it renders with no input.`

// StrictFormatInstruction is appended to the prompt when a response contained no artifact.
const StrictFormatInstruction = `

IMPORTANT: Your previous answer did not contain any code the preview could render.
Answer again and this time put the complete code inside a <files entry="/App.tsx"> block
with one <file path="..."> element per file, exactly as described in the system prompt.
Do not answer with prose only.`

// ChatSystemPrompt is the system prompt of the chatbot endpoint.
const ChatSystemPrompt = `You are the assistant of a component showcase. Answer questions about React,
Tailwind CSS and shadcn/ui concisely. Use <think>...</think> for private reasoning. Use fenced
code blocks for short snippets.`

var primitiveNames = []string{"badge", "button", "card", "input", "separator", "textarea"}

// GeneratorPrompt returns the template of the generator system prompt.
func GeneratorPrompt() prompts.PromptTemplate {
	packages := make([]string, 0)
	for name := range deps.BaseDependencies() {
		packages = append(packages, name)
	}
	sort.Strings(packages)

	return prompts.PromptTemplate{
		Template:       generatorTemplate,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
		InputVariables: []string{"today"},
		PartialVariables: map[string]any{
			"primitives": strings.Join(primitiveNames, ", "),
			"packages":   strings.Join(packages, ", "),
			"forbidden":  strings.Join(repair.ForbiddenPackages, " or "),
		},
	}
}

const (
	agentPrefix = `Today is {{.today}}.
You are the project inspector of a component showcase. The user is looking at a live preview of a
generated React project and asks questions about it. The project only exists in memory: use the
tools to read it, never guess file contents.

TOOL USAGE STRATEGY:
- To see which files exist: use ls, optionally with a directory such as /components
- To read a file: use cat with its absolute path
- To find where something is used: use grep with 'pattern' or 'pattern /path'
- For sizes and line counts: use stat
- For the npm packages the preview installs: use deps

Available tools:
{{.tool_descriptions}}`

	agentFormatInstructions = `MANDATORY FORMAT - Follow this EXACTLY:

Do NOT use <think>, <files>, <component> or any other XML-style tags.

Thought: [what you need to look at in the project]
Action: [one of: {{.tool_names}}]
Action Input: [the input for the tool]
Observation: [this will be filled by the tool result]
Thought: [whether you can answer now]
Final Answer: [the answer, quoting file paths and code where useful]`

	agentSuffix = `Use ONLY these keywords: "Thought:", "Action:", "Action Input:", "Observation:", "Final Answer:".

Question: {{.input}}
Thought:{{.agent_scratchpad}}`
)

// CreateAgentPrompt creates the prompt template of the project agent.
func CreateAgentPrompt(agentTools []tools.Tool) prompts.PromptTemplate {
	var toolNames []string
	var toolDescriptions []string

	for _, tool := range agentTools {
		toolNames = append(toolNames, tool.Name())
		toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s", tool.Name(), tool.Description()))
	}

	template := strings.Join([]string{agentPrefix, agentFormatInstructions, agentSuffix}, "\n\n")

	return prompts.PromptTemplate{
		Template:       template,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
		InputVariables: []string{"input", "agent_scratchpad", "today"},
		PartialVariables: map[string]any{
			"tool_names":        strings.Join(toolNames, ", "),
			"tool_descriptions": strings.Join(toolDescriptions, "\n"),
		},
	}
}
